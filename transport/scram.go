package transport

import (
	"context"
	"fmt"

	"github.com/xdg-go/scram"

	"github.com/quaydb/pgxec/wire"
)

// AuthNegotiator drives the SCRAM-SHA-256 startup handshake, both for the
// primary connection (pgxecconn.Connect) and for the auxiliary connection
// opened by Transport.OpenAuxiliary to carry CancelRequest (§4.6, §6). The
// engine itself never negotiates auth; per §1 this is explicitly an
// external transport concern.
type AuthNegotiator struct {
	Username string
	Password string
	Database string
}

// Negotiate sends StartupMessage on t and, if the backend challenges with
// AuthenticationSASL, completes a SCRAM-SHA-256 exchange before returning.
func (n *AuthNegotiator) Negotiate(ctx context.Context, t Transport) error {
	startup := wire.EncodeStartupMessage(map[string]string{
		"user":     n.Username,
		"database": n.Database,
	})
	if err := t.Send(ctx, startup); err != nil {
		return fmt.Errorf("scram: send startup: %w", err)
	}

	f, err := t.Recv(ctx)
	if err != nil {
		return fmt.Errorf("scram: recv auth challenge: %w", err)
	}
	msg, err := wire.Decode(f)
	if err != nil {
		return err
	}

	authReq, ok := msg.(wire.AuthenticationRequest)
	if !ok {
		return fmt.Errorf("scram: expected AuthenticationRequest, got %T", msg)
	}

	const (
		authOK       int32 = 0
		authSASL     int32 = 10
		authSASLCont int32 = 11
		authSASLFin  int32 = 12
	)

	switch authReq.Kind {
	case authOK:
		return nil
	case authSASL:
		return n.negotiateSCRAM(ctx, t)
	default:
		return fmt.Errorf("scram: unsupported authentication kind %d", authReq.Kind)
	}
}

func (n *AuthNegotiator) negotiateSCRAM(ctx context.Context, t Transport) error {
	client, err := scram.SHA256.NewClient(n.Username, n.Password, "")
	if err != nil {
		return fmt.Errorf("scram: init client: %w", err)
	}
	conv := client.NewConversation()

	first, err := conv.Step("")
	if err != nil {
		return fmt.Errorf("scram: client-first: %w", err)
	}
	if err := t.Send(ctx, wire.EncodePasswordMessage(buildSASLInitial("SCRAM-SHA-256", []byte(first)))); err != nil {
		return err
	}

	f, err := t.Recv(ctx)
	if err != nil {
		return fmt.Errorf("scram: recv server-first: %w", err)
	}
	msg, err := wire.Decode(f)
	if err != nil {
		return err
	}
	cont, ok := msg.(wire.AuthenticationRequest)
	if !ok {
		return fmt.Errorf("scram: expected AuthenticationSASLContinue, got %T", msg)
	}

	final, err := conv.Step(string(cont.Payload))
	if err != nil {
		return fmt.Errorf("scram: client-final: %w", err)
	}
	if err := t.Send(ctx, wire.EncodePasswordMessage([]byte(final))); err != nil {
		return err
	}

	f2, err := t.Recv(ctx)
	if err != nil {
		return fmt.Errorf("scram: recv server-final: %w", err)
	}
	msg2, err := wire.Decode(f2)
	if err != nil {
		return err
	}
	last, ok := msg2.(wire.AuthenticationRequest)
	if !ok {
		return fmt.Errorf("scram: expected AuthenticationSASLFinal/Ok, got %T", msg2)
	}
	if len(last.Payload) > 0 {
		if _, err := conv.Step(string(last.Payload)); err != nil {
			return fmt.Errorf("scram: verify server-final: %w", err)
		}
	}
	if !conv.Done() || !conv.Valid() {
		return fmt.Errorf("scram: negotiation did not complete successfully")
	}
	return nil
}

// buildSASLInitial frames a SASLInitialResponse PasswordMessage body:
// mechanism name, NUL, 4-byte length of the initial response, response
// bytes.
func buildSASLInitial(mechanism string, initial []byte) []byte {
	buf := make([]byte, 0, len(mechanism)+1+4+len(initial))
	buf = append(buf, mechanism...)
	buf = append(buf, 0)
	n := int32(len(initial))
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	buf = append(buf, initial...)
	return buf
}
