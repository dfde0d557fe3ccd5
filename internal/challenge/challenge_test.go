package challenge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/llm"
)

type messengerStub struct {
	chatID  string
	text    string
	rows    [][]port.Button
	sendErr error
}

func (m *messengerStub) SendText(_ context.Context, chatID, text string) (int, error) {
	m.chatID, m.text = chatID, text
	return 11, nil
}

func (m *messengerStub) SendTextWithButtons(_ context.Context, chatID, text string, rows [][]port.Button) (int, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	m.chatID, m.text, m.rows = chatID, text, rows
	return 11, nil
}

func (m *messengerStub) EditText(context.Context, string, int, string) error { return nil }

func (m *messengerStub) ForwardMessage(context.Context, string, string, int) (int, error) {
	return 0, nil
}

func (m *messengerStub) CopyMessage(context.Context, string, string, int) (int, error) {
	return 0, nil
}

func (m *messengerStub) AnswerCallback(context.Context, string, string, bool) error { return nil }

func (m *messengerStub) DeleteMessage(context.Context, string, int) error { return nil }

// sequenceRand pops pre-seeded values, making generation deterministic.
func sequenceRand(t *testing.T, vals ...int) func(int) int {
	t.Helper()
	i := 0
	return func(n int) int {
		if i >= len(vals) {
			t.Fatalf("random source exhausted after %d draws", len(vals))
		}
		v := vals[i]
		i++
		if v >= n {
			t.Fatalf("seeded value %d out of range for IntN(%d)", v, n)
		}
		return v
	}
}

func TestMathGenerateSubtraction(t *testing.T) {
	msg := &messengerStub{}
	// Operands 5 and 3, subtraction, then three no-op-ish shuffle draws.
	s := NewMathStrategy(msg, nil).WithRand(sequenceRand(t, 4, 2, 1, 0, 0, 0))

	ch, err := s.GenerateChallenge(context.Background(), "1001", "tok")
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	if ch.Question != "5 - 3 = ?" {
		t.Fatalf("question = %q", ch.Question)
	}
	if ch.CorrectAnswer != "2" {
		t.Fatalf("correct = %q", ch.CorrectAnswer)
	}

	got := append([]string(nil), ch.Options...)
	sort.Strings(got)
	want := []string{"1", "2", "3", "4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("options = %v, want permutation of %v", ch.Options, want)
		}
	}
}

func TestMathGenerateAddition(t *testing.T) {
	msg := &messengerStub{}
	s := NewMathStrategy(msg, nil).WithRand(sequenceRand(t, 9, 6, 0, 0, 0, 0))

	ch, err := s.GenerateChallenge(context.Background(), "1001", "tok")
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	if ch.Question != "10 + 7 = ?" || ch.CorrectAnswer != "17" {
		t.Fatalf("challenge = %+v", ch)
	}
}

func TestMathVerifyAnswer(t *testing.T) {
	s := NewMathStrategy(&messengerStub{}, nil)
	data := &domain.VerificationData{Method: domain.MethodMath, CorrectAnswer: "17"}

	if !s.VerifyAnswer(data, "17") {
		t.Fatal("correct value rejected")
	}
	if s.VerifyAnswer(data, "18") {
		t.Fatal("wrong value accepted")
	}
	if s.VerifyAnswer(&domain.VerificationData{Method: domain.MethodQuiz, CorrectAnswer: "17"}, "17") {
		t.Fatal("foreign method payload accepted")
	}
	if s.VerifyAnswer(nil, "17") {
		t.Fatal("nil payload accepted")
	}
}

func TestMathSendChallengeKeyboard(t *testing.T) {
	msg := &messengerStub{}
	s := NewMathStrategy(msg, nil)
	ch := &domain.Challenge{Question: "5 - 3 = ?", Options: []string{"2", "3", "1", "4"}}

	id, err := s.SendChallenge(context.Background(), "1001", ch)
	if err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}
	if id != 11 {
		t.Fatalf("message id = %d, want 11", id)
	}
	if len(msg.rows) != 2 || len(msg.rows[0]) != 2 || len(msg.rows[1]) != 2 {
		t.Fatalf("keyboard layout = %+v, want 2x2", msg.rows)
	}
	if msg.rows[0][0].CallbackData != "vm_1001_2" {
		t.Fatalf("callback = %q", msg.rows[0][0].CallbackData)
	}
	if !strings.Contains(msg.text, "5 - 3 = ?") {
		t.Fatalf("text = %q", msg.text)
	}
}

func TestQuizGenerateFromBank(t *testing.T) {
	s := NewQuizStrategy(&messengerStub{}, nil).WithRand(sequenceRand(t, 1))

	ch, err := s.GenerateChallenge(context.Background(), "1001", "tok")
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	if ch.Question != "How many hours are in a day?" {
		t.Fatalf("question = %q", ch.Question)
	}
	if ch.CorrectAnswer != "1" {
		t.Fatalf("correct = %q, want index 1", ch.CorrectAnswer)
	}
	if len(ch.Options) != 4 || ch.Options[1] != "24" {
		t.Fatalf("options = %v", ch.Options)
	}
}

func TestQuizSendChallengeUsesIndexes(t *testing.T) {
	msg := &messengerStub{}
	s := NewQuizStrategy(msg, nil)
	ch := &domain.Challenge{Question: "q", Options: []string{"a", "b", "c", "d"}}

	if _, err := s.SendChallenge(context.Background(), "1001", ch); err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}
	if len(msg.rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(msg.rows))
	}
	if msg.rows[2][0].Text != "c" || msg.rows[2][0].CallbackData != "vq_1001_2" {
		t.Fatalf("row 2 = %+v", msg.rows[2][0])
	}
}

func TestQuizVerifyAnswerByIndex(t *testing.T) {
	s := NewQuizStrategy(&messengerStub{}, nil)
	data := &domain.VerificationData{Method: domain.MethodQuiz, CorrectAnswer: "2"}

	if !s.VerifyAnswer(data, "2") {
		t.Fatal("correct index rejected")
	}
	if s.VerifyAnswer(data, "0") {
		t.Fatal("wrong index accepted")
	}
}

type chatStub struct {
	reply string
	err   error
}

func (c *chatStub) Chat(context.Context, []llm.Message) (string, error) {
	return c.reply, c.err
}

func TestAIGenerateChallenge(t *testing.T) {
	client := &chatStub{reply: `{"question":"What color is grass?","options":["Red","Green","Blue","Yellow"],"correct":1}`}
	s := NewAIStrategy(client, &messengerStub{}, nil)

	ch, err := s.GenerateChallenge(context.Background(), "1001", "tok")
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	if ch.Question != "What color is grass?" || ch.CorrectAnswer != "1" {
		t.Fatalf("challenge = %+v", ch)
	}
}

func TestAIGenerateRejectsMalformedReplies(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "provider error", err: errors.New("http 500")},
		{name: "not json", reply: "Sure! Here is a question:"},
		{name: "missing question", reply: `{"options":["a","b","c","d"],"correct":0}`},
		{name: "three options", reply: `{"question":"q","options":["a","b","c"],"correct":0}`},
		{name: "correct out of range", reply: `{"question":"q","options":["a","b","c","d"],"correct":4}`},
		{name: "negative correct", reply: `{"question":"q","options":["a","b","c","d"],"correct":-1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewAIStrategy(&chatStub{reply: tc.reply, err: tc.err}, &messengerStub{}, nil)
			if _, err := s.GenerateChallenge(context.Background(), "1001", "tok"); err == nil {
				t.Fatal("malformed reply accepted")
			}
		})
	}
}

func TestTurnstileSendChallenge(t *testing.T) {
	msg := &messengerStub{}
	s := NewTurnstileStrategy(msg, "https://relay.example.com", 15*time.Minute, nil)

	ch, err := s.GenerateChallenge(context.Background(), "1001", "abc123")
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	if ch.CorrectAnswer != "abc123" {
		t.Fatalf("correct = %q, want the token", ch.CorrectAnswer)
	}

	if _, err := s.SendChallenge(context.Background(), "1001", ch); err != nil {
		t.Fatalf("SendChallenge: %v", err)
	}
	if len(msg.rows) != 1 || len(msg.rows[0]) != 1 {
		t.Fatalf("rows = %+v", msg.rows)
	}
	if msg.rows[0][0].URL != "https://relay.example.com/verify/abc123" {
		t.Fatalf("url = %q", msg.rows[0][0].URL)
	}
	if !strings.Contains(msg.text, "15 minutes") {
		t.Fatalf("text = %q", msg.text)
	}

	if !s.VerifyAnswer(nil, "") {
		t.Fatal("turnstile inline verify must accept")
	}
}
