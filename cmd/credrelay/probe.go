package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/spf13/pflag"

	"github.com/rexliu/credrelay/pkg/config"
	"github.com/rexliu/credrelay/pkg/logging"
	"github.com/rexliu/credrelay/pkg/message"
	"github.com/rexliu/credrelay/pkg/messenger"
	"github.com/rexliu/credrelay/pkg/shim"
	"github.com/rexliu/credrelay/pkg/transport"
)

// dryRunNative stands in for the browser's credential container. It only
// records that the shim let the call through.
type dryRunNative struct {
	creates atomic.Int32
	gets    atomic.Int32
}

func (n *dryRunNative) Create(ctx context.Context, opts *protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error) {
	n.creates.Add(1)
	return &protocol.CredentialCreationResponse{}, nil
}

func (n *dryRunNative) Get(ctx context.Context, opts *protocol.CredentialAssertion) (*protocol.CredentialAssertionResponse, error) {
	n.gets.Add(1)
	return &protocol.CredentialAssertionResponse{}, nil
}

type probeOptions struct {
	profile string
	origin  string
	rpID    string
	user    string
	timeout time.Duration
}

func probeCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: credrelay probe <create|get> [options]")
	}
	sub := args[0]
	fs := pflag.NewFlagSet("probe "+sub, pflag.ExitOnError)
	var opts probeOptions
	fs.StringVar(&opts.profile, "profile", defaultProfile, "Profile directory")
	fs.StringVar(&opts.origin, "origin", "https://shop.example", "Page origin presented to the daemon")
	fs.StringVar(&opts.rpID, "rp-id", "", "Relying party id (defaults to the origin host)")
	fs.StringVar(&opts.user, "user", "probe", "User name")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Ceremony timeout")
	_ = fs.Parse(args[1:])

	cfg, err := config.LoadProfile(opts.profile)
	if err != nil {
		return err
	}
	if cfg.IPC.ListenAddr == "" {
		return fmt.Errorf("ipc.listenAddr is not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout+5*time.Second)
	defer cancel()

	native := &dryRunNative{}
	s, closeFn, err := dialShim(ctx, cfg, opts.origin, native)
	if err != nil {
		return err
	}
	defer closeFn()

	switch sub {
	case "create":
		creation, err := probeCreation(opts)
		if err != nil {
			return err
		}
		_, err = s.Create(ctx, creation)
		report("create", err, native.creates.Load())
	case "get":
		assertion := &protocol.CredentialAssertion{Response: protocol.PublicKeyCredentialRequestOptions{
			Timeout:          int(opts.timeout.Milliseconds()),
			RelyingPartyID:   opts.rpID,
			UserVerification: protocol.VerificationPreferred,
		}}
		_, err = s.Get(ctx, assertion)
		report("get", err, native.gets.Load())
	default:
		return fmt.Errorf("unknown probe subcommand %q", sub)
	}
	return nil
}

// dialShim connects a page-side messenger to the daemon's websocket relay
// and installs a mediated shim over native.
func dialShim(ctx context.Context, cfg *config.ProfileConfig, origin string, native shim.CredentialsContainer) (*shim.Shim, func(), error) {
	codec, err := message.LookupCodec(cfg.IPC.Codec)
	if err != nil {
		return nil, nil, err
	}
	raw := relayURL(cfg, cfg.IPC.WSPath)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	ws, err := transport.Dial(ctx, raw, origin, codec.Name() == "cbor")
	if err != nil {
		return nil, nil, err
	}
	m := messenger.New(ws, messenger.Config{
		AllowedOrigins: []string{transport.ServerOrigin(u)},
		Timeout:        cfg.Messenger.Timeout(),
		Codec:          codec,
		Logger:         logging.NewTo(os.Stderr, "credrelay"),
	})
	runCtx, stop := context.WithCancel(context.Background())
	go m.Run(runCtx)
	s := shim.Install(native, m, origin, shim.WithGetMode(shim.GetMediated))
	return s, func() { stop(); m.Close() }, nil
}

func probeCreation(opts probeOptions) (*protocol.CredentialCreation, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}
	userID := make([]byte, 16)
	if _, err := rand.Read(userID); err != nil {
		return nil, err
	}
	return &protocol.CredentialCreation{Response: protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{Name: "credrelay probe"},
			ID:               opts.rpID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{Name: opts.user},
			DisplayName:      opts.user,
			ID:               userID,
		},
		Challenge: protocol.URLEncodedBase64(challenge),
		Timeout:   int(opts.timeout.Milliseconds()),
	}}, nil
}

func report(op string, err error, nativeCalls int32) {
	if err == nil {
		fmt.Printf("%s: approved (native calls: %d)\n", op, nativeCalls)
		return
	}
	var shimErr *shim.Error
	if errors.As(err, &shimErr) {
		fmt.Printf("%s: rejected with %s: %v (native calls: %d)\n", op, shimErr.Name, shimErr.Err, nativeCalls)
		return
	}
	fmt.Printf("%s: failed: %v (native calls: %d)\n", op, err, nativeCalls)
}
