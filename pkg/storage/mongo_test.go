package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRawDecimal(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		want   string
		wantOK bool
	}{
		{"double", 12.5, "12.5", true},
		{"int32", int32(40), "40", true},
		{"int64", int64(1500), "1500", true},
		{"string", "85.00", "85", true},
		{"null", nil, "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(bson.M{"amount": tt.value})
			require.NoError(t, err)

			var doc expenseDoc
			require.NoError(t, bson.Unmarshal(raw, &doc))

			got, ok, err := rawDecimal(doc.Amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestRawDecimal_Decimal128(t *testing.T) {
	d, err := toDecimal128(decimal.RequireFromString("99.99"))
	require.NoError(t, err)
	raw, err := bson.Marshal(bson.M{"amount": d})
	require.NoError(t, err)

	var doc expenseDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	got, ok, err := rawDecimal(doc.Amount)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(decimal.RequireFromString("99.99")))
}

func TestExpenseDoc_MissingAmountIsZero(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"_id": "e1", "userId": "alice", "date": time.Now()})
	require.NoError(t, err)

	var doc expenseDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	rec, err := doc.toModel()
	require.NoError(t, err)
	assert.True(t, rec.Amount.IsZero())
	assert.Equal(t, "alice", rec.OwnerID)
}

func TestExpenseDoc_ObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.M{"_id": oid, "userId": "alice", "amount": "12.50", "date": time.Now()})
	require.NoError(t, err)

	var doc expenseDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	rec, err := doc.toModel()
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), rec.ID)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("12.5")))
}

func TestDecodeDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	want := time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		doc      bson.M
		wantID   string
		wantSent []string
	}{
		{
			name:     "object id and date",
			doc:      bson.M{"_id": oid, "userId": "alice", "title": "Passport", "expiryDate": want, "remindersSent": bson.A{"7d_2026-10-26"}},
			wantID:   oid.Hex(),
			wantSent: []string{"7d_2026-10-26"},
		},
		{
			name:   "string date without reminders",
			doc:    bson.M{"_id": oid, "userId": "alice", "title": "Passport", "expiryDate": "2026-10-26"},
			wantID: oid.Hex(),
		},
		{
			name:   "iso string date",
			doc:    bson.M{"_id": "doc-1", "userId": "alice", "title": "Passport", "expiryDate": "2026-10-26T00:00:00.000Z"},
			wantID: "doc-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(tt.doc)
			require.NoError(t, err)

			got, err := decodeDocument(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			require.NotNil(t, got.ExpiryDate)
			assert.True(t, got.ExpiryDate.Equal(want), "got %s", got.ExpiryDate)
			assert.Equal(t, tt.wantSent, got.RemindersSent)
		})
	}
}

func TestDecodeDocument_BadRows(t *testing.T) {
	tests := []struct {
		name string
		doc  bson.M
	}{
		{"unparseable date", bson.M{"_id": "d1", "userId": "alice", "expiryDate": "soon"}},
		{"boolean date", bson.M{"_id": "d2", "userId": "alice", "expiryDate": true}},
		{"reminders not a list", bson.M{"_id": "d3", "userId": "alice", "expiryDate": time.Now(), "remindersSent": "7d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(tt.doc)
			require.NoError(t, err)
			_, err = decodeDocument(raw)
			assert.Error(t, err)
		})
	}
}

func TestIDFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	f := idFilter(oid.Hex())
	in, ok := f["_id"].(bson.M)["$in"].(bson.A)
	require.True(t, ok)
	assert.Equal(t, bson.A{oid, oid.Hex()}, in)

	assert.Equal(t, bson.M{"_id": "doc-1"}, idFilter("doc-1"))

	assert.Equal(t, oid, storedID(oid.Hex()))
	assert.Equal(t, "doc-1", storedID("doc-1"))
}

func TestSettingsDoc_ToModel(t *testing.T) {
	raw, err := bson.Marshal(bson.M{
		"userId":                   "alice",
		"dailyBudget":              100.0,
		"monthlyBudget":            int32(2000),
		"alertThreshold":           int32(90),
		"warrantyRemindersEnabled": true,
		"warrantyReminderDays":     bson.A{int32(14), int32(2)},
	})
	require.NoError(t, err)

	var doc settingsDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	st, err := doc.toModel()
	require.NoError(t, err)

	require.NotNil(t, st.DailyLimit)
	assert.True(t, st.DailyLimit.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, st.WeeklyLimit)
	require.NotNil(t, st.MonthlyLimit)
	assert.True(t, st.MonthlyLimit.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, 90.0, st.AlertThresholdPct)
	// Absent notificationsEnabled reads as enabled
	assert.True(t, st.NotificationsEnabled)
	assert.True(t, st.WarrantyRemindersEnabled)
	assert.Equal(t, []int{14, 2}, st.ReminderDays)
}

func TestAlertKey(t *testing.T) {
	assert.Equal(t, "daily_budget", alertKey(model.KindDaily))
	assert.Equal(t, model.KindMonthly, kindFromAlertKey("monthly_budget"))
}

// TestMongo_Integration runs against a live server when POCKET_TEST_MONGO_URI is set.
func TestMongo_Integration(t *testing.T) {
	uri := os.Getenv("POCKET_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("POCKET_TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	dbName := "pocket_alerts_test_" + time.Now().Format("20060102150405")
	m, err := NewMongo(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.db.Drop(context.Background())
		m.Close()
	})

	require.NoError(t, m.UpsertDeviceToken(ctx, &model.OwnerDeviceToken{OwnerID: "alice", PushToken: "tok"}))
	tokens, err := m.ListDeviceTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	total := decimal.RequireFromString("85.00")
	require.NoError(t, m.InsertAlert(ctx, &model.AlertRecord{OwnerID: "alice", Kind: model.KindDaily, TriggeringTotal: total}))
	err = m.InsertAlert(ctx, &model.AlertRecord{OwnerID: "alice", Kind: model.KindDaily, TriggeringTotal: total})
	assert.ErrorIs(t, err, ErrDuplicateAlert)

	found, err := m.FindAlert(ctx, "alice", model.KindDaily, decimal.NewFromInt(85))
	require.NoError(t, err)
	assert.Equal(t, model.KindDaily, found.Kind)

	expiry := time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	doc := &model.TrackedDocument{OwnerID: "alice", Title: "Passport", ExpiryDate: &expiry}
	require.NoError(t, m.SaveDocument(ctx, doc))
	require.NoError(t, m.MarkReminderSent(ctx, doc.ID, "7d_2026-10-21", time.Now()))
	docs, err := m.ListExpiringDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"7d_2026-10-21"}, docs[0].RemindersSent)
}
