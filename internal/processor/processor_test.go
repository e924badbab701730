package processor

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// ---------------------------------------------------------------------------
// ProviderRegistry tests
// ---------------------------------------------------------------------------

func TestProviderRegistry_RegisterAndGet(t *testing.T) {
	reg := NewProviderRegistry()
	spec := ProviderSpec{
		Name:    "local",
		Command: "echo",
		Args:    []string{"hello"},
		Env:     map[string]string{"KEY": "VAL"},
	}

	if err := reg.Register(spec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Get("local")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Command != "echo" {
		t.Errorf("Command = %q, want %q", got.Command, "echo")
	}
	if got.Env["KEY"] != "VAL" {
		t.Errorf("Env[KEY] = %q, want %q", got.Env["KEY"], "VAL")
	}
}

func TestProviderRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewProviderRegistry()
	spec := ProviderSpec{Name: "local", Command: "echo"}

	if err := reg.Register(spec); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := reg.Register(spec); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("duplicate Register: err = %v, want ErrProviderUnavailable", err)
	}
}

func TestProviderRegistry_RegisterRequiresCommand(t *testing.T) {
	reg := NewProviderRegistry()
	if err := reg.Register(ProviderSpec{Name: "empty"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestProviderRegistry_GetUnknown(t *testing.T) {
	reg := NewProviderRegistry()
	_, err := reg.Get("nonexistent")
	if err != domain.ErrProviderUnavailable {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
	if _, err := reg.Open("nonexistent", nil); err != domain.ErrProviderUnavailable {
		t.Errorf("Open err = %v, want ErrProviderUnavailable", err)
	}
}

func TestProviderRegistry_List(t *testing.T) {
	reg := NewProviderRegistry()
	for _, name := range []string{"gamma", "alpha", "beta"} {
		if err := reg.Register(ProviderSpec{Name: name, Command: "echo"}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	list := reg.List()
	want := []string{"alpha", "beta", "gamma"}
	if len(list) != len(want) {
		t.Fatalf("List len = %d, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("list[%d] = %q, want %q", i, list[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// CommandProcessor tests
// ---------------------------------------------------------------------------

func shellProcessor(t *testing.T, script string, env map[string]string) *CommandProcessor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts require a POSIX sh")
	}
	reg := NewProviderRegistry()
	if err := reg.Register(ProviderSpec{Name: "sh", Command: "sh", Args: []string{"-c", script}, Env: env}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	p, err := reg.Open("sh", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func request() domain.ProcessorRequest {
	return domain.ProcessorRequest{
		ProcessID: "proc-7",
		Subject:   "Re: ping",
		Content:   "ping",
		Priority:  8,
		Step:      1,
		Stream:    domain.StreamPrimary,
		Term:      domain.TermSensoryInput,
		Mode:      domain.ModeExpressive,
	}
}

func TestCommandProcessor_UsesLastResultLine(t *testing.T) {
	p := shellProcessor(t, `cat >/dev/null
echo '{"type":"progress","output":"thinking"}'
echo 'not json'
echo '{"type":"result","output":"draft"}'
echo '{"type":"result","output":"pong","outcome":"partial","thought":"short reply","valence":0.5}'`, nil)

	res, err := p.Process(context.Background(), request())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Output != "pong" || res.Outcome != domain.OutcomePartial {
		t.Errorf("result = %+v", res)
	}
	if res.Thought != "short reply" {
		t.Errorf("Thought = %q", res.Thought)
	}
	if res.Valence == nil || *res.Valence != 0.5 {
		t.Errorf("Valence = %v", res.Valence)
	}
}

func TestCommandProcessor_ReceivesRequest(t *testing.T) {
	p := shellProcessor(t, `read req
case "$req" in
*'"process_id":"proc-7"'*'"term":"T4-sensory-input"'*) echo '{"type":"result","output":"seen"}' ;;
*) echo '{"type":"result","output":"missing"}' ;;
esac`, nil)

	res, err := p.Process(context.Background(), request())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Output != "seen" {
		t.Errorf("Output = %q, want seen", res.Output)
	}
	if res.Outcome != domain.OutcomeSuccess {
		t.Errorf("Outcome = %q, want default success", res.Outcome)
	}
}

func TestCommandProcessor_PassesEnv(t *testing.T) {
	p := shellProcessor(t, `echo "{\"type\":\"result\",\"output\":\"$GREETING\"}"`,
		map[string]string{"GREETING": "hello"})

	res, err := p.Process(context.Background(), request())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Output != "hello" {
		t.Errorf("Output = %q, want hello", res.Output)
	}
}

func TestCommandProcessor_NoResultLine(t *testing.T) {
	p := shellProcessor(t, `echo '{"type":"progress"}'`, nil)
	_, err := p.Process(context.Background(), request())
	if !errors.Is(err, domain.ErrProcessorProtocol) {
		t.Fatalf("err = %v, want ErrProcessorProtocol", err)
	}
}

func TestCommandProcessor_OversizedLine(t *testing.T) {
	p := shellProcessor(t, `cat >/dev/null
head -c 3000000 /dev/zero | tr '\0' a
echo
echo '{"type":"result","output":"late"}'`, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), request())
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrProcessorProtocol) {
			t.Fatalf("err = %v, want ErrProcessorProtocol", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Process blocked on an oversized output line")
	}
}

func TestCommandProcessor_NonZeroExit(t *testing.T) {
	p := shellProcessor(t, `echo 'model offline' >&2; exit 3`, nil)
	_, err := p.Process(context.Background(), request())
	if !errors.Is(err, domain.ErrProcessorFailure) {
		t.Fatalf("err = %v, want ErrProcessorFailure", err)
	}
	var ee *domain.EngineError
	if !errors.As(err, &ee) || ee.Message != "model offline" {
		t.Errorf("message = %v, want stderr text", err)
	}
}

func TestCommandProcessor_MissingBinary(t *testing.T) {
	p := NewCommandProcessor(ProviderSpec{Name: "ghost", Command: "/nonexistent/triad-processor"}, nil)
	_, err := p.Process(context.Background(), request())
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestCommandProcessor_ContextCancelled(t *testing.T) {
	p := shellProcessor(t, `sleep 5`, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Process(ctx, request()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// ---------------------------------------------------------------------------
// Echo tests
// ---------------------------------------------------------------------------

func TestEcho_FillsFieldForTerm(t *testing.T) {
	tests := []struct {
		term  domain.Term
		field func(domain.ProcessorResult) string
	}{
		{domain.TermSensoryInput, func(r domain.ProcessorResult) string { return r.Perception }},
		{domain.TermPerception, func(r domain.ProcessorResult) string { return r.Perception }},
		{domain.TermIdeaFormation, func(r domain.ProcessorResult) string { return r.Thought }},
		{domain.TermMemoryEncoding, func(r domain.ProcessorResult) string { return r.Thought }},
		{domain.TermActionSequence, func(r domain.ProcessorResult) string { return r.Action }},
		{domain.TermBalancedResponse, func(r domain.ProcessorResult) string { return r.Action }},
	}
	for _, tt := range tests {
		t.Run(tt.term.String(), func(t *testing.T) {
			req := request()
			req.Term = tt.term
			res, err := Echo{}.Process(context.Background(), req)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if res.Output != "ping" || res.Outcome != domain.OutcomeSuccess {
				t.Errorf("result = %+v", res)
			}
			if tt.field(res) == "" {
				t.Errorf("expected cognitive field for %s", tt.term)
			}
		})
	}
}

func TestEcho_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Echo{}).Process(ctx, request()); err == nil {
		t.Fatal("expected error")
	}
}
