package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names shared with the mobile application.
const (
	collUsers     = "users"
	collSettings  = "user_settings"
	collExpenses  = "expenses"
	collAlerts    = "budget_alerts"
	collDocuments = "documents"
)

// Mongo implements the Storage interface on a MongoDB database laid out the
// way the mobile application writes it.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ Storage = (*Mongo)(nil)

type userDoc struct {
	OwnerID   string    `bson:"userId"`
	PushToken string    `bson:"fcmToken,omitempty"`
	Email     string    `bson:"email,omitempty"`
	UpdatedAt time.Time `bson:"fcmTokenUpdatedAt"`
}

type settingsDoc struct {
	OwnerID                  string        `bson:"userId"`
	DailyBudget              bson.RawValue `bson:"dailyBudget,omitempty"`
	WeeklyBudget             bson.RawValue `bson:"weeklyBudget,omitempty"`
	MonthlyBudget            bson.RawValue `bson:"monthlyBudget,omitempty"`
	AlertThreshold           float64       `bson:"alertThreshold"`
	NotificationsEnabled     *bool         `bson:"notificationsEnabled,omitempty"`
	WarrantyRemindersEnabled bool          `bson:"warrantyRemindersEnabled"`
	ReminderDays             []int         `bson:"warrantyReminderDays,omitempty"`
	Timezone                 string        `bson:"timezone,omitempty"`
}

type expenseDoc struct {
	ID      bson.RawValue `bson:"_id"`
	OwnerID string        `bson:"userId"`
	Amount  bson.RawValue `bson:"amount,omitempty"`
	Date    time.Time     `bson:"date"`
}

type alertDoc struct {
	ID        string               `bson:"_id"`
	OwnerID   string               `bson:"userId"`
	Kind      string               `bson:"budgetKey"`
	Amount    primitive.Decimal128 `bson:"amount"`
	AlertedAt time.Time            `bson:"alertedAt"`
	Period    string               `bson:"period"`
}

// documentDoc is read from documents the application writes, so the _id may
// be an ObjectID or a string and expiryDate a Date or an ISO string.
type documentDoc struct {
	ID               bson.RawValue `bson:"_id"`
	OwnerID          string        `bson:"userId"`
	Title            string        `bson:"title"`
	FolderName       string        `bson:"folderName,omitempty"`
	ExpiryDate       bson.RawValue `bson:"expiryDate,omitempty"`
	RemindersSent    []string      `bson:"remindersSent,omitempty"`
	LastReminderSent *time.Time    `bson:"lastReminderSent,omitempty"`
}

// NewMongo connects to uri, selects database and prepares its indexes.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := &Mongo{client: client, db: client.Database(database), logger: slog.Default()}
	if err := m.Migrate(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

// SetLogger sets the logger used to report skipped documents.
func (m *Mongo) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Migrate removes duplicate owner rows and then creates the unique indexes
// the deduplication logic relies on.
func (m *Mongo) Migrate(ctx context.Context) error {
	if _, err := m.CleanupDuplicateOwners(ctx); err != nil {
		return err
	}
	return m.EnsureIndexes(ctx)
}

// EnsureIndexes creates the indexes used by lookups and uniqueness checks.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collSettings: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collExpenses: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: 1}}},
		},
		collAlerts: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "budgetKey", Value: 1}, {Key: "amount", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		collDocuments: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "expiryDate", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// CleanupDuplicateOwners keeps the most recently updated row per owner in the
// users collection and deletes the rest. It returns the number of rows removed.
func (m *Mongo) CleanupDuplicateOwners(ctx context.Context) (int, error) {
	coll := m.db.Collection(collUsers)
	opts := options.Find().SetSort(bson.D{{Key: "userId", Value: 1}, {Key: "fcmTokenUpdatedAt", Value: -1}})
	cur, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return 0, fmt.Errorf("scan users: %w", err)
	}
	defer cur.Close(ctx)

	var stale []primitive.ObjectID
	seen := make(map[string]bool)
	for cur.Next(ctx) {
		var row struct {
			ID      primitive.ObjectID `bson:"_id"`
			OwnerID string             `bson:"userId"`
		}
		if err := cur.Decode(&row); err != nil {
			return 0, fmt.Errorf("decode user: %w", err)
		}
		if seen[row.OwnerID] {
			stale = append(stale, row.ID)
			continue
		}
		seen[row.OwnerID] = true
	}
	if err := cur.Err(); err != nil {
		return 0, fmt.Errorf("iterate users: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": stale}})
	if err != nil {
		return 0, fmt.Errorf("delete duplicate users: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (m *Mongo) UpsertDeviceToken(ctx context.Context, token *model.OwnerDeviceToken) error {
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}
	_, err := m.db.Collection(collUsers).UpdateOne(ctx,
		bson.M{"userId": token.OwnerID},
		bson.M{"$set": bson.M{
			"fcmToken":          token.PushToken,
			"email":             token.Email,
			"fcmTokenUpdatedAt": token.UpdatedAt.UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert device token: %w", err)
	}
	return nil
}

func (m *Mongo) GetDeviceToken(ctx context.Context, ownerID string) (*model.OwnerDeviceToken, error) {
	var doc userDoc
	err := m.db.Collection(collUsers).FindOne(ctx, bson.M{"userId": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("owner %q: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device token: %w", err)
	}
	t := doc.toModel()
	return &t, nil
}

func (m *Mongo) ListDeviceTokens(ctx context.Context) ([]model.OwnerDeviceToken, error) {
	filter := bson.M{"fcmToken": bson.M{"$exists": true, "$ne": ""}}
	cur, err := m.db.Collection(collUsers).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "userId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	tokens := make([]model.OwnerDeviceToken, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.toModel())
	}
	return tokens, nil
}

func (m *Mongo) SetSettings(ctx context.Context, settings *model.BudgetSettings) error {
	set := bson.M{
		"alertThreshold":           settings.AlertThresholdPct,
		"notificationsEnabled":     settings.NotificationsEnabled,
		"warrantyRemindersEnabled": settings.WarrantyRemindersEnabled,
		"warrantyReminderDays":     settings.ReminderDays,
		"timezone":                 settings.Timezone,
	}
	unset := bson.M{}
	fields := map[string]*decimal.Decimal{
		"dailyBudget":   settings.DailyLimit,
		"weeklyBudget":  settings.WeeklyLimit,
		"monthlyBudget": settings.MonthlyLimit,
	}
	for field, limit := range fields {
		if limit == nil {
			unset[field] = ""
			continue
		}
		d, err := toDecimal128(*limit)
		if err != nil {
			return fmt.Errorf("encode %s: %w", field, err)
		}
		set[field] = d
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	_, err := m.db.Collection(collSettings).UpdateOne(ctx,
		bson.M{"userId": settings.OwnerID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set settings: %w", err)
	}
	return nil
}

func (m *Mongo) GetSettings(ctx context.Context, ownerID string) (*model.BudgetSettings, error) {
	var doc settingsDoc
	err := m.db.Collection(collSettings).FindOne(ctx, bson.M{"userId": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("settings for %q: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return doc.toModel()
}

func (m *Mongo) RecordSpend(ctx context.Context, record *model.SpendRecord) error {
	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	amount, err := toDecimal128(record.Amount)
	if err != nil {
		return fmt.Errorf("encode amount: %w", err)
	}

	id := storedID(record.ID)
	_, err = m.db.Collection(collExpenses).ReplaceOne(ctx,
		bson.M{"_id": id},
		bson.M{"_id": id, "userId": record.OwnerID, "amount": amount, "date": record.OccurredAt.UTC()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("insert spend record: %w", err)
	}
	return nil
}

func (m *Mongo) ListSpend(ctx context.Context, ownerID string, start, end time.Time) ([]model.SpendRecord, error) {
	filter := bson.M{
		"userId": ownerID,
		"date":   bson.M{"$gte": start.UTC(), "$lt": end.UTC()},
	}
	cur, err := m.db.Collection(collExpenses).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query spend: %w", err)
	}
	var docs []expenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}

	records := make([]model.SpendRecord, 0, len(docs))
	for _, d := range docs {
		r, err := d.toModel()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (m *Mongo) FindAlert(ctx context.Context, ownerID string, kind model.BudgetKind, total decimal.Decimal) (*model.AlertRecord, error) {
	amount, err := toDecimal128(total)
	if err != nil {
		return nil, fmt.Errorf("encode total: %w", err)
	}

	var doc alertDoc
	err = m.db.Collection(collAlerts).FindOne(ctx, bson.M{
		"userId":    ownerID,
		"budgetKey": alertKey(kind),
		"amount":    amount,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find alert: %w", err)
	}
	return doc.toModel()
}

func (m *Mongo) InsertAlert(ctx context.Context, alert *model.AlertRecord) error {
	if alert.ID == "" {
		alert.ID = primitive.NewObjectID().Hex()
	}
	if alert.SentAt.IsZero() {
		alert.SentAt = time.Now().UTC()
	}
	amount, err := toDecimal128(alert.TriggeringTotal)
	if err != nil {
		return fmt.Errorf("encode total: %w", err)
	}

	_, err = m.db.Collection(collAlerts).InsertOne(ctx, alertDoc{
		ID:        alert.ID,
		OwnerID:   alert.OwnerID,
		Kind:      alertKey(alert.Kind),
		Amount:    amount,
		AlertedAt: alert.SentAt.UTC(),
		Period:    string(alert.Kind),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateAlert
	}
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (m *Mongo) ListAlerts(ctx context.Context, ownerID string) ([]model.AlertRecord, error) {
	cur, err := m.db.Collection(collAlerts).Find(ctx, bson.M{"userId": ownerID},
		options.Find().SetSort(bson.D{{Key: "alertedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	var docs []alertDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}

	alerts := make([]model.AlertRecord, 0, len(docs))
	for _, d := range docs {
		a, err := d.toModel()
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, nil
}

func (m *Mongo) SaveDocument(ctx context.Context, doc *model.TrackedDocument) error {
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}
	sent := doc.RemindersSent
	if sent == nil {
		sent = []string{}
	}

	id := storedID(doc.ID)
	row := bson.M{
		"_id":           id,
		"userId":        doc.OwnerID,
		"title":         doc.Title,
		"remindersSent": sent,
	}
	if doc.FolderName != "" {
		row["folderName"] = doc.FolderName
	}
	if doc.ExpiryDate != nil {
		row["expiryDate"] = doc.ExpiryDate.UTC()
	}
	if doc.LastReminderSentAt != nil {
		row["lastReminderSent"] = doc.LastReminderSentAt.UTC()
	}
	_, err := m.db.Collection(collDocuments).ReplaceOne(ctx, bson.M{"_id": id}, row, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (m *Mongo) ListExpiringDocuments(ctx context.Context, ownerID string) ([]model.TrackedDocument, error) {
	filter := bson.M{"userId": ownerID, "expiryDate": bson.M{"$exists": true, "$ne": nil}}
	cur, err := m.db.Collection(collDocuments).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "expiryDate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.TrackedDocument
	for cur.Next(ctx) {
		doc, err := decodeDocument(cur.Current)
		if err != nil {
			m.logger.Warn("skipping document", "owner", ownerID, "id", cur.Current.Lookup("_id").String(), "error", err)
			continue
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

func (m *Mongo) MarkReminderSent(ctx context.Context, documentID, key string, at time.Time) error {
	res, err := m.db.Collection(collDocuments).UpdateOne(ctx,
		idFilter(documentID),
		bson.M{
			"$addToSet": bson.M{"remindersSent": key},
			"$set":      bson.M{"lastReminderSent": at.UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("document %q: %w", documentID, ErrNotFound)
	}
	return nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (d userDoc) toModel() model.OwnerDeviceToken {
	return model.OwnerDeviceToken{
		OwnerID:   d.OwnerID,
		PushToken: d.PushToken,
		Email:     d.Email,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d settingsDoc) toModel() (*model.BudgetSettings, error) {
	st := &model.BudgetSettings{
		OwnerID:                  d.OwnerID,
		AlertThresholdPct:        d.AlertThreshold,
		NotificationsEnabled:     true,
		WarrantyRemindersEnabled: d.WarrantyRemindersEnabled,
		ReminderDays:             d.ReminderDays,
		Timezone:                 d.Timezone,
	}
	if d.NotificationsEnabled != nil {
		st.NotificationsEnabled = *d.NotificationsEnabled
	}

	limits := []struct {
		kind model.BudgetKind
		raw  bson.RawValue
	}{
		{model.KindDaily, d.DailyBudget},
		{model.KindWeekly, d.WeeklyBudget},
		{model.KindMonthly, d.MonthlyBudget},
	}
	for _, l := range limits {
		v, ok, err := rawDecimal(l.raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s budget for %q: %w", l.kind, d.OwnerID, err)
		}
		if ok {
			st.SetLimit(l.kind, &v)
		}
	}
	return st, nil
}

func (d expenseDoc) toModel() (model.SpendRecord, error) {
	id, err := rawID(d.ID)
	if err != nil {
		return model.SpendRecord{}, fmt.Errorf("decode expense id: %w", err)
	}
	amount, _, err := rawDecimal(d.Amount)
	if err != nil {
		return model.SpendRecord{}, fmt.Errorf("decode amount of expense %s: %w", id, err)
	}
	return model.SpendRecord{ID: id, OwnerID: d.OwnerID, Amount: amount, OccurredAt: d.Date}, nil
}

func (d alertDoc) toModel() (*model.AlertRecord, error) {
	total, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("decode alert amount: %w", err)
	}
	kind := model.BudgetKind(d.Period)
	if !kind.Valid() {
		kind = kindFromAlertKey(d.Kind)
	}
	return &model.AlertRecord{
		ID:              d.ID,
		OwnerID:         d.OwnerID,
		Kind:            kind,
		TriggeringTotal: total,
		SentAt:          d.AlertedAt,
	}, nil
}

func decodeDocument(raw bson.Raw) (model.TrackedDocument, error) {
	var d documentDoc
	if err := bson.Unmarshal(raw, &d); err != nil {
		return model.TrackedDocument{}, err
	}
	return d.toModel()
}

func (d documentDoc) toModel() (model.TrackedDocument, error) {
	id, err := rawID(d.ID)
	if err != nil {
		return model.TrackedDocument{}, fmt.Errorf("decode document id: %w", err)
	}
	expiry, err := rawDate(d.ExpiryDate)
	if err != nil {
		return model.TrackedDocument{}, fmt.Errorf("document %s expiryDate: %w", id, err)
	}
	return model.TrackedDocument{
		ID:                 id,
		OwnerID:            d.OwnerID,
		Title:              d.Title,
		FolderName:         d.FolderName,
		ExpiryDate:         expiry,
		RemindersSent:      d.RemindersSent,
		LastReminderSentAt: d.LastReminderSent,
	}, nil
}

// alertKey is the budgetKey value the application uses, e.g. "daily_budget".
func alertKey(kind model.BudgetKind) string {
	return string(kind) + "_budget"
}

func kindFromAlertKey(key string) model.BudgetKind {
	for _, k := range model.BudgetKinds {
		if alertKey(k) == key {
			return k
		}
	}
	return model.BudgetKind(key)
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

// rawDecimal reads a numeric BSON value exactly. Absent and null values
// report ok=false with a zero decimal.
func rawDecimal(rv bson.RawValue) (decimal.Decimal, bool, error) {
	switch rv.Type {
	case 0, bsontype.Null, bsontype.Undefined:
		return decimal.Zero, false, nil
	case bsontype.Double:
		return decimal.NewFromFloat(rv.Double()), true, nil
	case bsontype.Int32:
		return decimal.NewFromInt32(rv.Int32()), true, nil
	case bsontype.Int64:
		return decimal.NewFromInt(rv.Int64()), true, nil
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(rv.Decimal128().String())
		if err != nil {
			return decimal.Zero, false, err
		}
		return d, true, nil
	case bsontype.String:
		d, err := decimal.NewFromString(rv.StringValue())
		if err != nil {
			return decimal.Zero, false, err
		}
		return d, true, nil
	}
	return decimal.Zero, false, fmt.Errorf("unsupported numeric type %s", rv.Type)
}

// rawID returns the model form of an _id: the hex string of an ObjectID or
// the value of a string or integer id.
func rawID(rv bson.RawValue) (string, error) {
	switch rv.Type {
	case bsontype.ObjectID:
		return rv.ObjectID().Hex(), nil
	case bsontype.String:
		return rv.StringValue(), nil
	case bsontype.Int32:
		return strconv.Itoa(int(rv.Int32())), nil
	case bsontype.Int64:
		return strconv.FormatInt(rv.Int64(), 10), nil
	}
	return "", fmt.Errorf("unsupported _id type %s", rv.Type)
}

// storedID is the _id written for a model id. Hex ids become ObjectIDs so
// rows match the ones the application creates.
func storedID(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// idFilter matches a model id stored either as an ObjectID or as a string.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

// rawDate reads a Date, or an ISO 8601 / YYYY-MM-DD string. Absent and null
// values give nil.
func rawDate(rv bson.RawValue) (*time.Time, error) {
	switch rv.Type {
	case 0, bsontype.Null, bsontype.Undefined:
		return nil, nil
	case bsontype.DateTime:
		t := rv.Time().UTC()
		return &t, nil
	case bsontype.String:
		t, err := parseDate(rv.StringValue())
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	return nil, fmt.Errorf("unsupported date type %s", rv.Type)
}
