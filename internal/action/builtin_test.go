package action

import (
	"context"
	"strings"
	"testing"

	"github.com/chatrelay/chatrelay/internal/whatsapp"
)

type fakeAlertSender struct {
	to   []string
	text []string
}

func (f *fakeAlertSender) Send(ctx context.Context, to, text string) (whatsapp.SendResult, error) {
	f.to = append(f.to, to)
	f.text = append(f.text, text)
	return whatsapp.SendResult{}, nil
}

func newBuiltinRegistry(alerts AlertSender, adminNumber string) *Registry {
	r := newSeededRegistry(Action{Name: FuncAlertAdmin, Kind: KindLocal, FunctionKey: FuncAlertAdmin})
	RegisterBuiltins(r, nil, nil, alerts, adminNumber)
	return r
}

func TestAlertAdmin_SendsToAdminNumber(t *testing.T) {
	t.Parallel()
	sender := &fakeAlertSender{}
	r := newBuiltinRegistry(sender, "15559990000")

	out := r.Dispatch(context.Background(), Call{Name: FuncAlertAdmin, Arguments: `{"message":"payment mismatch on order 42","severity":"warning"}`})
	if !strings.Contains(out, "success") {
		t.Fatalf("output = %q", out)
	}
	if len(sender.to) != 1 || sender.to[0] != "15559990000" {
		t.Fatalf("sent to = %+v", sender.to)
	}
	if !strings.Contains(sender.text[0], "payment mismatch on order 42") || !strings.Contains(sender.text[0], "WARNING") {
		t.Fatalf("alert text = %q", sender.text[0])
	}
}

func TestAlertAdmin_RequiresMessage(t *testing.T) {
	t.Parallel()
	sender := &fakeAlertSender{}
	r := newBuiltinRegistry(sender, "15559990000")

	out := r.Dispatch(context.Background(), Call{Name: FuncAlertAdmin, Arguments: `{"severity":"info"}`})
	if !strings.Contains(out, "message argument is required") {
		t.Fatalf("output = %q", out)
	}
	if len(sender.to) != 0 {
		t.Fatalf("alert sent without a message: %+v", sender.to)
	}
}

func TestAlertAdmin_UnconfiguredAdminNumber(t *testing.T) {
	t.Parallel()
	sender := &fakeAlertSender{}
	r := newBuiltinRegistry(sender, "")

	out := r.Dispatch(context.Background(), Call{Name: FuncAlertAdmin, Arguments: `{"message":"hello"}`})
	if !strings.Contains(out, "no admin number configured") {
		t.Fatalf("output = %q", out)
	}
}
