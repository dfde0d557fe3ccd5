package usecase

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xkrfer/telegram-pm-relay/internal/core/domain"
	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/infra/config"
	"github.com/xkrfer/telegram-pm-relay/internal/repository"
)

type sentMessage struct {
	chatID string
	text   string
}

type messengerStub struct {
	sent       []sentMessage
	forwarded  int
	copied     int
	deleted    []int
	nextMsgID  int
	forwardErr error
	deleteErr  error
}

func (m *messengerStub) SendText(_ context.Context, chatID, text string) (int, error) {
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	m.nextMsgID++
	return m.nextMsgID, nil
}

func (m *messengerStub) SendTextWithButtons(_ context.Context, chatID, text string, _ [][]port.Button) (int, error) {
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	m.nextMsgID++
	return m.nextMsgID, nil
}

func (m *messengerStub) EditText(context.Context, string, int, string) error { return nil }

func (m *messengerStub) ForwardMessage(context.Context, string, string, int) (int, error) {
	if m.forwardErr != nil {
		return 0, m.forwardErr
	}
	m.forwarded++
	m.nextMsgID++
	return m.nextMsgID, nil
}

func (m *messengerStub) CopyMessage(context.Context, string, string, int) (int, error) {
	m.copied++
	m.nextMsgID++
	return m.nextMsgID, nil
}

func (m *messengerStub) AnswerCallback(context.Context, string, string, bool) error { return nil }

func (m *messengerStub) DeleteMessage(_ context.Context, _ string, messageID int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *messengerStub) textsTo(chatID string) []string {
	var out []string
	for _, s := range m.sent {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

type messageRepoStub struct {
	records  []domain.MessageRecord
	mappings map[string]*domain.MessageMap
}

func newMessageRepoStub() *messageRepoStub {
	return &messageRepoStub{mappings: make(map[string]*domain.MessageMap)}
}

func (m *messageRepoStub) SaveRecord(_ context.Context, record domain.MessageRecord) (*domain.MessageRecord, error) {
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return &record, nil
}

func (m *messageRepoStub) History(_ context.Context, telegramID string, limit, _ int) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].TelegramID == telegramID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *messageRepoStub) Search(_ context.Context, keyword string, limit int) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].Content != nil && strings.Contains(*m.records[i].Content, keyword) {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func (m *messageRepoStub) SaveMapping(_ context.Context, mapping domain.MessageMap) error {
	copied := mapping
	m.mappings[mapping.AdminMessageID] = &copied
	return nil
}

func (m *messageRepoStub) GetMapping(_ context.Context, adminMessageID string) (*domain.MessageMap, error) {
	if mp, ok := m.mappings[adminMessageID]; ok {
		copied := *mp
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *messageRepoStub) GetMappingByOriginal(_ context.Context, telegramID, originalMessageID string) (*domain.MessageMap, error) {
	for _, mp := range m.mappings {
		if mp.TelegramID == telegramID && mp.OriginalMessageID != nil && *mp.OriginalMessageID == originalMessageID {
			copied := *mp
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *messageRepoStub) RevokeMapping(_ context.Context, adminMessageID string) error {
	if mp, ok := m.mappings[adminMessageID]; ok {
		mp.IsRevoked = true
		return nil
	}
	return repository.ErrNotFound
}

func (m *messageRepoStub) CountByDirection(_ context.Context, direction domain.MessageDirection, since time.Time) (int, error) {
	count := 0
	for _, r := range m.records {
		if r.Direction == direction && r.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *messageRepoStub) CountActiveUsers(_ context.Context, since time.Time) (int, error) {
	seen := make(map[string]bool)
	for _, r := range m.records {
		if r.Direction == domain.DirectionIn && r.CreatedAt.After(since) {
			seen[r.TelegramID] = true
		}
	}
	return len(seen), nil
}

func (m *messageRepoStub) CountAll(context.Context) (int, error) { return len(m.records), nil }

func (m *messageRepoStub) CountUsers(context.Context) (int, error) { return 0, nil }

type filterRepoStub struct {
	filters []domain.MessageFilter
	nextID  int64
}

func (m *filterRepoStub) Create(_ context.Context, filter domain.MessageFilter) (*domain.MessageFilter, error) {
	m.nextID++
	filter.ID = m.nextID
	m.filters = append(m.filters, filter)
	return &filter, nil
}

func (m *filterRepoStub) Delete(_ context.Context, id int64) error {
	for i, f := range m.filters {
		if f.ID == id {
			m.filters = append(m.filters[:i], m.filters[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *filterRepoStub) SetActive(_ context.Context, id int64, active bool) error {
	for i := range m.filters {
		if m.filters[i].ID == id {
			m.filters[i].IsActive = active
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *filterRepoStub) SetPriority(_ context.Context, id int64, priority int) error {
	for i := range m.filters {
		if m.filters[i].ID == id {
			m.filters[i].Priority = priority
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *filterRepoStub) ListActive(context.Context) ([]domain.MessageFilter, error) {
	var out []domain.MessageFilter
	for _, f := range m.filters {
		if f.IsActive {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *filterRepoStub) ListAll(context.Context) ([]domain.MessageFilter, error) {
	return append([]domain.MessageFilter(nil), m.filters...), nil
}

func (m *filterRepoStub) Count(context.Context) (int, error) { return len(m.filters), nil }

type relayFixture struct {
	svc       *RelayService
	users     *userRepoStub
	records   *messageRepoStub
	messenger *messengerStub
	bans      *banRepoStub
	filters   *filterRepoStub
}

func newRelayFixture(t *testing.T, now time.Time, verificationEnabled bool, users ...*domain.User) *relayFixture {
	t.Helper()

	userRepo := newUserRepoStub(users...)
	records := newMessageRepoStub()
	msg := &messengerStub{}
	bans := newBanRepoStub()
	filters := &filterRepoStub{}

	app := testAppConfig()
	cfgRepo := &configRepoStub{
		stored: &domain.SystemConfig{
			ID: 1,
			Verification: domain.VerificationConfig{
				Enabled: verificationEnabled,
				Method:  domain.MethodMath,
				Timeout: 900,
			},
		},
	}
	cfgSvc := NewConfigService(cfgRepo, app, nil).WithClock(fixedClock(now))

	strategy := &strategyStub{
		method:    domain.MethodMath,
		messageID: 500,
		challenge: domain.Challenge{Question: "5 - 3 = ?", Options: []string{"2", "3", "4", "1"}, CorrectAnswer: "2"},
	}
	verification := NewVerificationService(userRepo, cfgSvc, map[domain.VerificationMethod]port.ChallengeStrategy{domain.MethodMath: strategy}, nil).
		WithClock(fixedClock(now)).
		WithTokenSource(func() (string, error) { return "fixed-token", nil })

	telegram := config.TelegramSettings{
		AdminID:        "9000",
		AutoWelcome:    true,
		WelcomeMessage: "welcome!",
		NotifyInterval: time.Hour,
	}

	svc := NewRelayService(
		userRepo,
		records,
		msg,
		NewRateLimitService(userRepo, testBase, nil).WithClock(fixedClock(now)),
		verification,
		NewFraudService(bans, nil).WithClock(fixedClock(now)),
		NewFilterService(filters, nil).WithClock(fixedClock(now)),
		cfgSvc,
		telegram,
		nil,
	).WithClock(fixedClock(now))

	return &relayFixture{svc: svc, users: userRepo, records: records, messenger: msg, bans: bans, filters: filters}
}

func verifiedUser(id string, now time.Time) *domain.User {
	at := now.Add(-24 * time.Hour)
	return &domain.User{ID: id, IsVerified: true, VerifiedAt: &at, MessageCount: 5}
}

func textMessage(chatID string, messageID int, text string) InboundMessage {
	content := text
	return InboundMessage{
		ChatID:    chatID,
		MessageID: messageID,
		FirstName: "Guest",
		Text:      text,
		Kind:      domain.KindText,
		Content:   &content,
	}
}

func TestStartCommandReturnsIntro(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, true)

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 1, "/start")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	if len(fx.messenger.sent) != 1 || fx.messenger.sent[0].chatID != "1001" {
		t.Fatalf("sent = %+v", fx.messenger.sent)
	}
	if _, ok := fx.users.users["1001"]; ok {
		t.Fatal("/start must not create a user row")
	}
}

func TestBlockedUserSilentlyDropped(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, false, &domain.User{ID: "1001", IsBlocked: true})

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 1, "hello")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	if len(fx.messenger.sent) != 0 || fx.messenger.forwarded != 0 {
		t.Fatalf("blocked user leaked: sent=%d forwarded=%d", len(fx.messenger.sent), fx.messenger.forwarded)
	}
}

func TestUnverifiedUserGetsChallenge(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, true)

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 1, "hello")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}

	stored := fx.users.users["1001"]
	if stored.VerificationToken == nil {
		t.Fatal("expected a verification session")
	}
	if stored.VerificationAttempts != 1 {
		t.Fatalf("attempts = %d, want 1", stored.VerificationAttempts)
	}
	if fx.messenger.forwarded != 0 {
		t.Fatal("unverified message must not be forwarded")
	}
}

func TestVerifiedUserMessageForwarded(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, true, verifiedUser("1001", now))

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 10, "hello admin")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	if fx.messenger.forwarded != 1 {
		t.Fatalf("forwarded = %d, want 1", fx.messenger.forwarded)
	}
	if len(fx.records.records) != 1 {
		t.Fatalf("records = %d, want 1", len(fx.records.records))
	}
	record := fx.records.records[0]
	if record.Direction != domain.DirectionIn || record.TelegramID != "1001" {
		t.Fatalf("record = %+v", record)
	}
	if len(fx.records.mappings) != 1 {
		t.Fatalf("mappings = %d, want 1", len(fx.records.mappings))
	}
	// New session notification goes to the admin.
	adminTexts := fx.messenger.textsTo("9000")
	if len(adminTexts) != 1 || !strings.Contains(adminTexts[0], "New Session") {
		t.Fatalf("admin texts = %v", adminTexts)
	}
}

func TestRateLimitedMessageNotForwarded(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := verifiedUser("1001", now)
	user.LastMessageTimes = []int64{now.Add(-time.Second).UnixMilli()}
	fx := newRelayFixture(t, now, true, user)

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 10, "again")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	if fx.messenger.forwarded != 0 {
		t.Fatal("rate-limited message must not be forwarded")
	}

	guestTexts := fx.messenger.textsTo("1001")
	if len(guestTexts) != 1 || !strings.Contains(guestTexts[0], "too fast") {
		t.Fatalf("guest texts = %v", guestTexts)
	}
	// First violation alerts the admin.
	adminTexts := fx.messenger.textsTo("9000")
	if len(adminTexts) != 1 || !strings.Contains(adminTexts[0], "rate limit") {
		t.Fatalf("admin texts = %v", adminTexts)
	}
	if fx.users.users["1001"].RateLimitViolations != 1 {
		t.Fatalf("violations = %d, want 1", fx.users.users["1001"].RateLimitViolations)
	}
}

func TestBannedUserAlertsAdminButForwards(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reason := "chargeback fraud"
	fx := newRelayFixture(t, now, false, verifiedUser("1001", now))
	fx.bans.entries["1001"] = &domain.BanEntry{TelegramID: "1001", Reason: &reason}

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 10, "hello")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	if fx.messenger.forwarded != 1 {
		t.Fatal("advisory ban must not block forwarding")
	}
	adminTexts := fx.messenger.textsTo("9000")
	found := false
	for _, text := range adminTexts {
		if strings.Contains(text, "High Risk") && strings.Contains(text, "chargeback fraud") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no high risk alert in %v", adminTexts)
	}
}

func TestFilterBlockTellsGuest(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, false, verifiedUser("1001", now))
	fx.filters.filters = []domain.MessageFilter{
		{ID: 1, Regex: "spamword", Mode: domain.FilterBlock, IsActive: true},
	}

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 10, "buy spamword now")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	if fx.messenger.forwarded != 0 {
		t.Fatal("blocked content must not be forwarded")
	}
	guestTexts := fx.messenger.textsTo("1001")
	if len(guestTexts) == 0 || !strings.Contains(guestTexts[len(guestTexts)-1], "prohibited content") {
		t.Fatalf("guest texts = %v", guestTexts)
	}
}

func TestFilterDropIsSilent(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := verifiedUser("1001", now)
	notified := now.Add(-10 * time.Minute)
	user.LastNotificationAt = &notified
	fx := newRelayFixture(t, now, false, user)
	fx.filters.filters = []domain.MessageFilter{
		{ID: 1, Regex: "spamword", Mode: domain.FilterDrop, IsActive: true},
	}

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 10, "spamword")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	if fx.messenger.forwarded != 0 {
		t.Fatal("dropped content must not be forwarded")
	}
	if texts := fx.messenger.textsTo("1001"); len(texts) != 0 {
		t.Fatalf("drop mode must stay silent, got %v", texts)
	}
}

func TestNotifyIntervalSuppressesRepeatPings(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := verifiedUser("1001", now)
	recent := now.Add(-10 * time.Minute)
	user.LastNotificationAt = &recent
	fx := newRelayFixture(t, now, false, user)

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 10, "hello")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	for _, text := range fx.messenger.textsTo("9000") {
		if strings.Contains(text, "New Session") {
			t.Fatal("new session ping sent within interval")
		}
	}
}

func TestAutoWelcomeOnFirstMessage(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, false)

	if err := fx.svc.HandleGuestMessage(context.Background(), textMessage("1001", 10, "first contact")); err != nil {
		t.Fatalf("HandleGuestMessage: %v", err)
	}
	guestTexts := fx.messenger.textsTo("1001")
	if len(guestTexts) == 0 || guestTexts[0] != "welcome!" {
		t.Fatalf("guest texts = %v", guestTexts)
	}
}

func TestDeliverAdminReply(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, false, verifiedUser("1001", now))

	original := "10"
	if err := fx.records.SaveMapping(context.Background(), domain.MessageMap{
		AdminMessageID:    "55",
		TelegramID:        "1001",
		OriginalMessageID: &original,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}

	content := "on my way"
	chatID, err := fx.svc.DeliverAdminReply(context.Background(), 55, "9000", 56, domain.KindText, &content)
	if err != nil {
		t.Fatalf("DeliverAdminReply: %v", err)
	}
	if chatID != "1001" {
		t.Fatalf("chatID = %q, want 1001", chatID)
	}
	if fx.messenger.copied != 1 {
		t.Fatalf("copied = %d, want 1", fx.messenger.copied)
	}

	last := fx.records.records[len(fx.records.records)-1]
	if last.Direction != domain.DirectionOut {
		t.Fatalf("record direction = %q, want out", last.Direction)
	}

	// The reply itself gets a mapping so it can be recalled later.
	reverse, err := fx.records.GetMapping(context.Background(), "56")
	if err != nil {
		t.Fatalf("reverse mapping: %v", err)
	}
	if reverse.TelegramID != "1001" || reverse.OriginalMessageID == nil {
		t.Fatalf("reverse mapping = %+v", reverse)
	}
}

func TestRecallDeletesGuestCopy(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, false, verifiedUser("1001", now))

	guestMsg := "700"
	if err := fx.records.SaveMapping(context.Background(), domain.MessageMap{
		AdminMessageID:    "56",
		TelegramID:        "1001",
		OriginalMessageID: &guestMsg,
	}); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}

	if err := fx.svc.Recall(context.Background(), 56); err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(fx.messenger.deleted) != 1 || fx.messenger.deleted[0] != 700 {
		t.Fatalf("deleted = %v, want [700]", fx.messenger.deleted)
	}
	if !fx.records.mappings["56"].IsRevoked {
		t.Fatal("mapping not marked revoked")
	}

	if err := fx.svc.Recall(context.Background(), 56); err != ErrAlreadyRecalled {
		t.Fatalf("second recall err = %v, want ErrAlreadyRecalled", err)
	}
	if err := fx.svc.Recall(context.Background(), 999); err != ErrNoMapping {
		t.Fatalf("unknown recall err = %v, want ErrNoMapping", err)
	}
}

func TestDeliverAdminReplyNoMapping(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, false)

	if _, err := fx.svc.DeliverAdminReply(context.Background(), 999, "9000", 1000, domain.KindText, nil); err != ErrNoMapping {
		t.Fatalf("err = %v, want ErrNoMapping", err)
	}
}

func TestNotifyEditOnlyForRelayedMessages(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fx := newRelayFixture(t, now, false, verifiedUser("1001", now))

	// Not relayed: stays quiet.
	if err := fx.svc.NotifyEdit(context.Background(), textMessage("1001", 77, "edited"), "old"); err != nil {
		t.Fatalf("NotifyEdit: %v", err)
	}
	if len(fx.messenger.sent) != 0 {
		t.Fatalf("unexpected notification %v", fx.messenger.sent)
	}

	original := strconv.Itoa(77)
	if err := fx.records.SaveMapping(context.Background(), domain.MessageMap{
		AdminMessageID:    "300",
		TelegramID:        "1001",
		OriginalMessageID: &original,
	}); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}

	if err := fx.svc.NotifyEdit(context.Background(), textMessage("1001", 77, "edited"), "old"); err != nil {
		t.Fatalf("NotifyEdit: %v", err)
	}
	adminTexts := fx.messenger.textsTo("9000")
	if len(adminTexts) != 1 || !strings.Contains(adminTexts[0], "edited a message") {
		t.Fatalf("admin texts = %v", adminTexts)
	}
}
