package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"StackSave/internal/dispatch"
	xerrors "StackSave/internal/errors"
	"StackSave/internal/intent"
	"StackSave/internal/observability/alerting"
	"StackSave/internal/reply"
	"StackSave/internal/storage/journal"
	"StackSave/internal/web3"
)

type stubGateway struct {
	configured bool
	outcome    web3.Outcome
	phones     []string
}

func (s *stubGateway) Configured() bool { return s.configured }

func (s *stubGateway) call(phone string) web3.Outcome {
	s.phones = append(s.phones, phone)
	return s.outcome
}

func (s *stubGateway) Deposit(_ context.Context, phone string, _ float64) web3.Outcome {
	return s.call(phone)
}

func (s *stubGateway) Withdraw(_ context.Context, phone string, _ float64) web3.Outcome {
	return s.call(phone)
}

func (s *stubGateway) Stake(_ context.Context, phone string, _ float64) web3.Outcome {
	return s.call(phone)
}

func (s *stubGateway) Unstake(_ context.Context, phone string, _ float64) web3.Outcome {
	return s.call(phone)
}

func (s *stubGateway) Balance(context.Context, string) (web3.BalanceSnapshot, error) {
	return web3.BalanceSnapshot{}, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerter) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, string) intent.Result { panic("boom") }

func (panickingClassifier) Name() string { return "panic" }

func newPipeline(t *testing.T, gw *stubGateway) (*Pipeline, *journal.FileInteractionRepository, *recordingAlerter) {
	t.Helper()
	repo, err := journal.NewFileInteractionRepository(t.TempDir())
	if err != nil {
		t.Fatalf("create journal: %v", err)
	}
	alerter := &recordingAlerter{}
	p := New(intent.NewRuleClassifier(), dispatch.New(gw, reply.NewTemplateRenderer()),
		WithJournal(repo), WithAlerter(alerter), WithReplyStrategy(reply.StrategyTemplate))
	return p, repo, alerter
}

func latest(t *testing.T, repo journal.InteractionRepository) journal.InteractionRecord {
	t.Helper()
	records, err := repo.ListLatest(context.Background(), 1)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one journal record, got %d (%v)", len(records), err)
	}
	return records[0]
}

func TestDepositEndToEnd(t *testing.T) {
	gw := &stubGateway{configured: true, outcome: web3.Succeeded("100", "0xabc")}
	p, repo, alerter := newPipeline(t, gw)

	got := p.Handle(context.Background(), "  Deposit 100 USDC ", "628123456789@c.us")
	if !strings.Contains(got, "Deposit successful") || !strings.Contains(got, "100") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if len(gw.phones) != 1 || gw.phones[0] != "628123456789" {
		t.Fatalf("expected one gateway call for the bare phone number, got %v", gw.phones)
	}

	rec := latest(t, repo)
	if rec.Sender != "628123456789" || rec.Intent != "DEPOSIT" || rec.Amount != "100" || rec.Coin != "USDC" {
		t.Fatalf("unexpected journal record: %+v", rec)
	}
	if !rec.Success || rec.TxHash != "0xabc" || rec.Strategy != "rules+template" {
		t.Fatalf("unexpected journal outcome: %+v", rec)
	}
	if len(alerter.events) != 0 {
		t.Fatalf("unexpected alerts: %+v", alerter.events)
	}
}

func TestBalanceWithoutGatewayConfig(t *testing.T) {
	p, _, _ := newPipeline(t, &stubGateway{})
	got := p.Handle(context.Background(), "check balance", "628111@c.us")
	want := "Balance checking is currently disabled. Please configure your blockchain settings to use DeFi features."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestUnknownMessage(t *testing.T) {
	p, repo, _ := newPipeline(t, &stubGateway{configured: true})
	got := p.Handle(context.Background(), "asdkjasd", "628111@c.us")
	if got != reply.NewTemplateRenderer().Render(context.Background(), intent.Unknown, reply.Context{}) {
		t.Fatalf("expected clarification template, got %q", got)
	}
	rec := latest(t, repo)
	if rec.Intent != "UNKNOWN" || rec.Confidence != 0.5 {
		t.Fatalf("unexpected journal record: %+v", rec)
	}
}

func TestFailedMutationRaisesAlert(t *testing.T) {
	gw := &stubGateway{configured: true, outcome: web3.Failed("5", xerrors.New(xerrors.CodeChainFailure, "execution reverted"))}
	p, repo, alerter := newPipeline(t, gw)

	got := p.Handle(context.Background(), "stake 5 USDC", "628222@c.us")
	if !strings.HasPrefix(got, "❌") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if len(alerter.events) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerter.events))
	}
	event := alerter.events[0]
	if event.Code != xerrors.CodeChainFailure || event.Sender != "628222" || event.Intent != "STAKE" {
		t.Fatalf("unexpected alert: %+v", event)
	}
	if rec := latest(t, repo); rec.Success || rec.Error == "" {
		t.Fatalf("expected failed journal record, got %+v", rec)
	}
}

func TestUnavailableGatewayDoesNotAlert(t *testing.T) {
	gw := &stubGateway{configured: true, outcome: web3.Failed("5", xerrors.New(xerrors.CodeServiceUnavailable, "offline"))}
	p, _, alerter := newPipeline(t, gw)
	p.Handle(context.Background(), "withdraw 5", "1")
	if len(alerter.events) != 0 {
		t.Fatalf("unexpected alerts: %+v", alerter.events)
	}
}

func TestPanicYieldsApology(t *testing.T) {
	repo, err := journal.NewFileInteractionRepository(t.TempDir())
	if err != nil {
		t.Fatalf("create journal: %v", err)
	}
	alerter := &recordingAlerter{}
	p := New(panickingClassifier{}, dispatch.New(nil, reply.NewTemplateRenderer()),
		WithJournal(repo), WithAlerter(alerter))

	if got := p.Handle(context.Background(), "Deposit 1", "1"); got != ApologyText {
		t.Fatalf("expected apology, got %q", got)
	}
	rec := latest(t, repo)
	if rec.Success || rec.Reply != ApologyText || !strings.Contains(rec.Error, "boom") {
		t.Fatalf("unexpected journal record: %+v", rec)
	}
	if len(alerter.events) != 1 || alerter.events[0].Code != xerrors.CodeUnknown {
		t.Fatalf("expected unknown-error alert, got %+v", alerter.events)
	}
}

func TestDispatchErrorYieldsApology(t *testing.T) {
	p := New(intent.NewRuleClassifier(), dispatch.New(nil, nil))
	if got := p.Handle(context.Background(), "help", "1"); got != ApologyText {
		t.Fatalf("expected apology, got %q", got)
	}
	if got := New(nil, nil).Handle(context.Background(), "help", "1"); got != ApologyText {
		t.Fatalf("expected apology without collaborators, got %q", got)
	}
}
