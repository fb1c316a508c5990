//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/notify"
	"github.com/safar/petplace/internal/store"
	"github.com/safar/petplace/internal/upload"
)

func countNotifications(t *testing.T, db *sql.DB, userID int64) int {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestLostPetAlertNotifiesUsersInRadius(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sender := notify.NewService(db, zap.NewNop())

	owner := mustCreateUser(t, db, "owner@example.com")
	near := mustCreateUser(t, db, "near@example.com")
	far := mustCreateUser(t, db, "far@example.com")
	unknown := mustCreateUser(t, db, "nowhere@example.com")

	require.NoError(t, store.UpdateUserPosition(ctx, db, owner.ID, 40.7128, -74.0060))
	require.NoError(t, store.UpdateUserPosition(ctx, db, near.ID, 40.7200, -74.0000))
	require.NoError(t, store.UpdateUserPosition(ctx, db, far.ID, 39.9526, -75.1652))

	pet, err := store.CreatePet(ctx, db, store.CreatePetRequest{OwnerID: owner.ID, Name: "Rex", Species: "dog"})
	require.NoError(t, err)

	alert, notified, err := store.CreateLostPetAlert(ctx, db, sender, store.CreateAlertRequest{
		PetID:       pet.ID,
		OwnerID:     owner.ID,
		Description: "brown terrier, red collar",
		Latitude:    40.7128,
		Longitude:   -74.0060,
		RadiusKm:    5,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusActive, alert.Status)
	assert.Equal(t, 1, notified)

	assert.Equal(t, 1, countNotifications(t, db, near.ID))
	assert.Equal(t, 0, countNotifications(t, db, far.ID))
	assert.Equal(t, 0, countNotifications(t, db, owner.ID))
	assert.Equal(t, 0, countNotifications(t, db, unknown.ID))

	lost, err := store.GetPet(ctx, db, pet.ID)
	require.NoError(t, err)
	assert.True(t, lost.IsLost)

	nearby, err := store.NearbyAlerts(ctx, db, 40.7200, -74.0000, 2, 10)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	require.NotNil(t, nearby[0].DistanceKm)

	_, err = store.ReportFoundPet(ctx, db, sender, store.FoundReportRequest{
		AlertID:    alert.ID,
		ReporterID: near.ID,
		Latitude:   40.7150,
		Longitude:  -74.0030,
		Notes:      "seen near the park",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countNotifications(t, db, owner.ID))

	_, err = store.ResolveLostPetAlert(ctx, db, alert.ID, near.ID)
	assert.ErrorIs(t, err, database.ErrAlertClosed)

	resolved, err := store.ResolveLostPetAlert(ctx, db, alert.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)

	found, err := store.GetPet(ctx, db, pet.ID)
	require.NoError(t, err)
	assert.False(t, found.IsLost)

	_, err = store.ReportFoundPet(ctx, db, sender, store.FoundReportRequest{
		AlertID: alert.ID, ReporterID: near.ID, Latitude: 40.7, Longitude: -74,
	})
	assert.ErrorIs(t, err, database.ErrAlertClosed)
}

func TestConversationFlow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	uploader := upload.NewLocal(t.TempDir(), "http://localhost:8080")

	alice := mustCreateUser(t, db, "alice@example.com")
	bob := mustCreateUser(t, db, "bob@example.com")

	c1, err := store.GetOrCreateConversation(ctx, db, bob.ID, alice.ID)
	require.NoError(t, err)
	c2, err := store.GetOrCreateConversation(ctx, db, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	msg, err := store.SendMessage(ctx, db, uploader, store.SendMessageRequest{
		ConversationID: c1.ID,
		SenderID:       alice.ID,
		Body:           "Here are the x-rays",
		Files:          []upload.File{{Name: "xray.png", Size: 5, Content: strings.NewReader("image")}},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.True(t, strings.HasPrefix(msg.Attachments[0].URL, "http://localhost:8080/files/messages/"))

	_, err = store.SendMessage(ctx, db, uploader, store.SendMessageRequest{
		ConversationID: c1.ID,
		SenderID:       alice.ID,
		Body:           "Let me know",
	})
	require.NoError(t, err)

	unread, err := store.UnreadCount(ctx, db, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	conversations, err := store.ListConversations(ctx, db, bob.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, 2, conversations[0].UnreadCount)
	assert.NotNil(t, conversations[0].LastMessageAt)

	// The sender's own messages never count as unread for them.
	marked, err := store.MarkConversationAsRead(ctx, db, c1.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)

	marked, err = store.MarkConversationAsRead(ctx, db, c1.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	unread, err = store.UnreadCount(ctx, db, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	page, err := store.ListMessages(ctx, db, c1.ID, bob.ID, "", 1)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	messages := page.Items.([]models.Message)
	require.Len(t, messages, 1)
	assert.Equal(t, "Let me know", messages[0].Body)
}

func TestPetCard(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	owner := mustCreateUser(t, db, "card@example.com")
	vet := mustCreateUser(t, db, "cardvet@example.com")

	birth := time.Now().AddDate(-3, -1, 0)
	pet, err := store.CreatePet(ctx, db, store.CreatePetRequest{
		OwnerID:   owner.ID,
		Name:      "Milo",
		Species:   "cat",
		BirthDate: &birth,
		Microchip: "985112003456789",
	})
	require.NoError(t, err)

	_, err = store.EnsurePublicToken(ctx, db, vet.ID, pet.ID)
	require.ErrorIs(t, err, database.ErrPetNotFound)

	token, err := store.EnsurePublicToken(ctx, db, owner.ID, pet.ID)
	require.NoError(t, err)
	again, err := store.EnsurePublicToken(ctx, db, owner.ID, pet.ID)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	card, err := store.GetPetCard(ctx, db, "https://petplace.test/", token)
	require.NoError(t, err)
	assert.Nil(t, card.LastExamAt)
	require.NotNil(t, card.AgeYears)
	assert.Equal(t, 3, *card.AgeYears)
	assert.Equal(t, "https://petplace.test/p/"+token, card.QRCodeURL)

	_, err = store.CreateExam(ctx, db, nil, store.CreateExamRequest{
		PetID:      pet.ID,
		VetID:      vet.ID,
		Kind:       "checkup",
		ExaminedAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	card, err = store.GetPetCard(ctx, db, "https://petplace.test", token)
	require.NoError(t, err)
	assert.NotNil(t, card.LastExamAt)
	assert.Equal(t, owner.Email, card.OwnerEmail)

	_, err = store.GetPetCard(ctx, db, "https://petplace.test", "unknown-token")
	assert.ErrorIs(t, err, database.ErrPetNotFound)
}

func TestInsuranceClaimFlow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	owner := mustCreateUser(t, db, "insured@example.com")
	pet, err := store.CreatePet(ctx, db, store.CreatePetRequest{OwnerID: owner.ID, Name: "Bella", Species: "dog"})
	require.NoError(t, err)

	policy, err := store.CreatePolicy(ctx, db, store.CreatePolicyRequest{
		PetID:        pet.ID,
		Provider:     "Acme Pet",
		PolicyNumber: "POL-100",
		Coverage:     []string{"surgery", "dental"},
		Exclusions:   []string{"dental"},
		StartsAt:     time.Now().AddDate(0, -1, 0),
		EndsAt:       time.Now().AddDate(1, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"surgery", "dental"}, policy.Coverage)

	check, err := store.VerifyCoverage(ctx, db, policy.ID, "dental")
	require.NoError(t, err)
	assert.False(t, check.Covered)
	assert.True(t, check.PolicyActive)

	claim, err := store.CreateClaim(ctx, db, store.CreateClaimRequest{
		PolicyID:      policy.ID,
		ProcedureType: "surgery",
		Amount:        decimal.NewFromInt(450),
	})
	require.NoError(t, err)
	assert.Equal(t, pet.ID, claim.PetID)

	submitted, err := store.SubmitClaim(ctx, db, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimStatusUnderReview, submitted.Status)
	assert.NotNil(t, submitted.SubmittedAt)

	_, err = store.SubmitClaim(ctx, db, claim.ID)
	assert.ErrorIs(t, err, database.ErrInvalidTransition)

	pa, err := store.CreatePreAuthorization(ctx, db, store.PreAuthRequest{
		PolicyID:      policy.ID,
		ProcedureType: "surgery",
		EstimatedCost: decimal.NewFromInt(900),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PreAuthStatusPending, pa.Status)
}

func TestAdCampaignExhaustsBudget(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rules := config.DefaultRules().Ads

	advertiser := mustCreateUser(t, db, "ads@example.com")

	campaign, err := store.CreateCampaign(ctx, db, store.CreateCampaignRequest{
		AdvertiserID: advertiser.ID,
		Name:         "Kibble",
		Targeting:    map[string]string{"species": "dog"},
		Budget:       decimal.RequireFromString("0.25"),
		StartsAt:     time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	eligible, err := store.EligibleCampaigns(ctx, db, map[string]string{"species": "dog"}, time.Now())
	require.NoError(t, err)
	assert.Len(t, eligible, 1)

	eligible, err = store.EligibleCampaigns(ctx, db, map[string]string{"species": "cat"}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, eligible)

	for i := 0; i < 2; i++ {
		c, err := store.RecordImpression(ctx, db, rules, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CampaignStatusActive, c.Status)
	}

	c, err := store.RecordImpression(ctx, db, rules, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusExhausted, c.Status)
	assert.Equal(t, int64(3), c.Impressions)

	_, err = store.RecordClick(ctx, db, rules, campaign.ID)
	assert.ErrorIs(t, err, database.ErrCampaignInactive)

	_, err = store.SetCampaignStatus(ctx, db, campaign.ID, models.CampaignStatusActive)
	assert.ErrorIs(t, err, database.ErrInvalidTransition)

	eligible, err = store.EligibleCampaigns(ctx, db, map[string]string{"species": "dog"}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestWebhookQueueSkipsLockedEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	added, err := store.EnqueueWebhook(ctx, db, "sandbox", "evt_1", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.EnqueueWebhook(ctx, db, "sandbox", "evt_1", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.False(t, added)

	tx1, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx1.Rollback() }()

	ev, err := store.ClaimWebhook(ctx, tx1)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "evt_1", ev.EventID)

	tx2, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx2.Rollback() }()

	other, err := store.ClaimWebhook(ctx, tx2)
	require.NoError(t, err)
	assert.Nil(t, other)

	dead, err := store.MarkWebhookFailed(ctx, tx1, ev, assert.AnError, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, dead)
	require.NoError(t, tx1.Commit())

	tx3, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx3.Rollback() }()

	none, err := store.ClaimWebhook(ctx, tx3)
	require.NoError(t, err)
	assert.Nil(t, none)
}
