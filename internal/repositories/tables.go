package repositories

import (
	"fmt"
	"strings"

	"github.com/prudhvinik1/cardsync/internal/replication"
)

type ColumnKind int

const (
	KindText ColumnKind = iota
	KindUUID
	KindInt
	KindTime
)

type ColumnMode int

const (
	// ModeWritable columns are taken from pushed documents.
	ModeWritable ColumnMode = iota
	// ModeKey columns identify the row and never change.
	ModeKey
	// ModeCreated columns are set on insert, from the document or now.
	ModeCreated
	// ModeStamp columns are set to the server write time.
	ModeStamp
)

type Column struct {
	Name     string
	Field    string
	Kind     ColumnKind
	Mode     ColumnMode
	Nullable bool
	// NonNegative rejects values below zero for KindInt columns.
	NonNegative bool
}

// TableSpec maps one replicated entity onto its Postgres table.
type TableSpec struct {
	Entity  replication.EntityType
	Table   string
	Columns []Column
	// OrderExpr is the SQL expression behind the checkpoint timestamp.
	OrderExpr string
}

func (t TableSpec) DateFields() []string {
	var fields []string
	for _, c := range t.Columns {
		if c.Kind == KindTime {
			fields = append(fields, c.Field)
		}
	}
	return fields
}

// selectList renders the projection shared by every query. Columns are
// aliased to their wire names so rows decode straight into documents.
func (t TableSpec) selectList() string {
	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		expr := c.Name
		if c.Kind == KindUUID {
			expr += "::text"
		}
		parts = append(parts, fmt.Sprintf("%s AS %q", expr, c.Field))
	}
	parts = append(parts, fmt.Sprintf("deleted_at IS NOT NULL AS %q", replication.DeletedField))
	return strings.Join(parts, ", ")
}

// orderKey is the pull order. It only uses immutable expressions so the
// owner index in schema.sql can serve it; date_trunc on timestamptz is not.
func (t TableSpec) orderKey() string {
	return fmt.Sprintf(`date_trunc('milliseconds', (%s) AT TIME ZONE 'UTC'), (id::text COLLATE "C")`, t.OrderExpr)
}

func (t TableSpec) pullQuery(withCheckpoint bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE owner_id = $1", t.selectList(), t.Table)
	if withCheckpoint {
		fmt.Fprintf(&b, " AND (%s) > ($2::timestamptz AT TIME ZONE 'UTC', $3::text)", t.orderKey())
		fmt.Fprintf(&b, " ORDER BY %s LIMIT $4", t.orderKey())
	} else {
		fmt.Fprintf(&b, " ORDER BY %s LIMIT $2", t.orderKey())
	}
	return b.String()
}

func (t TableSpec) lockQuery() string {
	return fmt.Sprintf("SELECT owner_id::text, %s FROM %s WHERE id = $1 FOR UPDATE", t.selectList(), t.Table)
}

// upsertQuery inserts or updates a row owned by $2. Parameters follow
// Columns order with deleted_at last. An id owned by someone else returns no
// row.
func (t TableSpec) upsertQuery() string {
	names := make([]string, 0, len(t.Columns)+1)
	params := make([]string, 0, len(t.Columns)+1)
	var sets []string
	for i, c := range t.Columns {
		names = append(names, c.Name)
		params = append(params, fmt.Sprintf("$%d", i+1))
		if c.Mode == ModeWritable || c.Mode == ModeStamp {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c.Name, c.Name))
		}
	}
	names = append(names, "deleted_at")
	params = append(params, fmt.Sprintf("$%d", len(t.Columns)+1))
	sets = append(sets, "deleted_at = EXCLUDED.deleted_at")

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s WHERE %s.owner_id = EXCLUDED.owner_id RETURNING %s",
		t.Table,
		strings.Join(names, ", "),
		strings.Join(params, ", "),
		strings.Join(sets, ", "),
		t.Table,
		t.selectList(),
	)
}

// ownerLockKey names the advisory lock that serializes writes of one owner
// to this table across every server process.
func (t TableSpec) ownerLockKey(ownerID string) string {
	return t.Table + ":" + ownerID
}

const ownerLockQuery = "SELECT pg_advisory_xact_lock(hashtext($1))"

// latestQuery returns the greatest checkpoint timestamp of the owner,
// tombstones included.
func (t TableSpec) latestQuery() string {
	return fmt.Sprintf("SELECT max(%s) FROM %s WHERE owner_id = $1", t.OrderExpr, t.Table)
}

func (t TableSpec) softDeleteAllQuery() string {
	stamp := ""
	for _, c := range t.Columns {
		if c.Mode == ModeStamp {
			stamp = fmt.Sprintf(", %s = $2", c.Name)
		}
	}
	return fmt.Sprintf("UPDATE %s SET deleted_at = $2%s WHERE owner_id = $1 AND deleted_at IS NULL", t.Table, stamp)
}

var (
	idColumn        = Column{Name: "id", Field: "id", Kind: KindUUID, Mode: ModeKey}
	ownerColumn     = Column{Name: "owner_id", Field: "ownerId", Kind: KindUUID, Mode: ModeKey}
	createdAtColumn = Column{Name: "created_at", Field: "createdAt", Kind: KindTime, Mode: ModeCreated}
	updatedAtColumn = Column{Name: "updated_at", Field: "updatedAt", Kind: KindTime, Mode: ModeStamp}
)

var Tables = map[replication.EntityType]TableSpec{
	replication.EntityStorageContainer: {
		Entity: replication.EntityStorageContainer,
		Table:  "storage_containers",
		Columns: []Column{
			idColumn,
			ownerColumn,
			{Name: "name", Field: "name", Kind: KindText},
			{Name: "description", Field: "description", Kind: KindText, Nullable: true},
			{Name: "type", Field: "type", Kind: KindText},
			createdAtColumn,
			updatedAtColumn,
		},
		OrderExpr: "updated_at",
	},
	replication.EntityCollectionCard: {
		Entity: replication.EntityCollectionCard,
		Table:  "collection_cards",
		Columns: []Column{
			idColumn,
			ownerColumn,
			{Name: "card_id", Field: "cardId", Kind: KindText},
			{Name: "quantity", Field: "quantity", Kind: KindInt, NonNegative: true},
			{Name: "condition", Field: "condition", Kind: KindText},
			{Name: "finish", Field: "finish", Kind: KindText},
			{Name: "language", Field: "language", Kind: KindText},
			{Name: "notes", Field: "notes", Kind: KindText, Nullable: true},
			createdAtColumn,
			updatedAtColumn,
		},
		OrderExpr: "updated_at",
	},
	replication.EntityCollectionCardLocation: {
		Entity: replication.EntityCollectionCardLocation,
		Table:  "collection_card_locations",
		Columns: []Column{
			idColumn,
			ownerColumn,
			{Name: "collection_card_id", Field: "collectionCardId", Kind: KindUUID},
			{Name: "storage_container_id", Field: "storageContainerId", Kind: KindUUID, Nullable: true},
			{Name: "deck_id", Field: "deckId", Kind: KindUUID, Nullable: true},
			{Name: "assigned_at", Field: "assignedAt", Kind: KindTime, Mode: ModeCreated},
			{Name: "updated_at", Field: "updatedAt", Kind: KindTime, Mode: ModeStamp, Nullable: true},
		},
		OrderExpr: "COALESCE(updated_at, assigned_at)",
	},
	replication.EntityDeck: {
		Entity: replication.EntityDeck,
		Table:  "decks",
		Columns: []Column{
			idColumn,
			ownerColumn,
			{Name: "name", Field: "name", Kind: KindText},
			{Name: "format", Field: "format", Kind: KindText},
			{Name: "description", Field: "description", Kind: KindText, Nullable: true},
			createdAtColumn,
			updatedAtColumn,
		},
		OrderExpr: "updated_at",
	},
	replication.EntityDeckCard: {
		Entity: replication.EntityDeckCard,
		Table:  "deck_cards",
		Columns: []Column{
			idColumn,
			ownerColumn,
			{Name: "deck_id", Field: "deckId", Kind: KindUUID},
			{Name: "card_id", Field: "cardId", Kind: KindText},
			{Name: "quantity", Field: "quantity", Kind: KindInt, NonNegative: true},
			{Name: "board", Field: "board", Kind: KindText},
			createdAtColumn,
			updatedAtColumn,
		},
		OrderExpr: "updated_at",
	},
	replication.EntityTag: {
		Entity: replication.EntityTag,
		Table:  "tags",
		Columns: []Column{
			idColumn,
			ownerColumn,
			{Name: "name", Field: "name", Kind: KindText},
			{Name: "color", Field: "color", Kind: KindText, Nullable: true},
			createdAtColumn,
			updatedAtColumn,
		},
		OrderExpr: "updated_at",
	},
}
