// Package writer turns state-variable events into guarded sheet commands.
// It owns the idempotency ledger, staleness checks against row versions,
// and the audit journal derived from every accepted event.
package writer

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/tavernforge/statevar/internal/event"
	"github.com/tavernforge/statevar/internal/jsonval"
	"github.com/tavernforge/statevar/internal/mapping"
	"github.com/tavernforge/statevar/internal/sheet"
)

// Mode selects whether accepted commands are journalled only or also
// applied to the table store.
type Mode string

const (
	// ModeShadow journals commands without touching live tables.
	ModeShadow Mode = "shadow"
	// ModeApply journals commands and hands them to the apply callback.
	ModeApply Mode = "apply"
)

// VersionSource answers row version lookups for staleness checks.
type VersionSource interface {
	RowVersion(id sheet.ID, rowID string) int64
}

// VersionMap is a static VersionSource keyed "<sheet>::<row>".
type VersionMap map[string]int64

// RowVersion implements VersionSource.
func (m VersionMap) RowVersion(id sheet.ID, rowID string) int64 {
	return m[string(id)+"::"+rowID]
}

// Options configures one consume call.
type Options struct {
	// Snapshot is the working state commands are folded onto. Intra-batch
	// reads (numeric adds, index-addressed deletes) see earlier accepted
	// commands through it.
	Snapshot sheet.Snapshot
	// Versions resolves current row versions; nil disables staleness
	// checks.
	Versions VersionSource
	Mode     Mode
	// Apply receives accepted plus audit commands in apply mode.
	Apply func(ctx context.Context, commands []Command) error
	// Backlog is reported verbatim in the batch metrics.
	Backlog int
}

// SkippedEvent pairs a rejected event with its skip reason.
type SkippedEvent struct {
	Event  event.Event
	Reason string
}

// Result is the outcome of consuming one batch.
type Result struct {
	Accepted      []event.Event
	Skipped       []SkippedEvent
	Commands      []Command
	AuditCommands []Command
	Metrics       Metrics
	// Snapshot is the working snapshot after folding accepted commands.
	Snapshot sheet.Snapshot
}

// Writer consumes event batches against a durable State.
type Writer struct {
	State    *State
	Registry map[string]DomainBinding
	Now      func() time.Time
}

// New returns a writer with a fresh state and the default domain registry.
func New() *Writer {
	return &Writer{
		State:    NewState(),
		Registry: Registry(),
		Now:      time.Now,
	}
}

// invalidPlaceholder stands in for input that could not be shaped into an
// event at all, so rejects stay visible in skip metrics.
func invalidPlaceholder() event.Event {
	return event.Event{
		ID:             "invalid",
		TurnID:         "invalid",
		Source:         "invalid",
		Domain:         "invalid",
		EntityID:       "invalid",
		Path:           "invalid",
		Op:             "invalid",
		IdempotencyKey: "invalid",
	}
}

// ConsumeRaw normalises untyped payloads into events and consumes them as
// one batch. Payloads that are not objects are skipped as invalid rather
// than failing the batch.
func (w *Writer) ConsumeRaw(ctx context.Context, raw []any, meta event.BatchMeta, opts Options) (Result, error) {
	events := make([]event.Event, 0, len(raw))
	var preskipped []SkippedEvent
	for _, item := range raw {
		evt, err := event.Normalize(item)
		if err != nil {
			preskipped = append(preskipped, SkippedEvent{Event: invalidPlaceholder(), Reason: SkipInvalidEvent})
			continue
		}
		events = append(events, evt)
	}
	batch := event.NewBatch(events, meta)
	return w.consume(ctx, batch.Events, preskipped, opts)
}

// Consume processes a batch of events: validation, dedup, command
// synthesis, staleness, fold, audit. It never fails on a bad event; the
// returned error is reserved for the apply callback.
func (w *Writer) Consume(ctx context.Context, batch event.Batch, opts Options) (Result, error) {
	return w.consume(ctx, batch.Events, nil, opts)
}

func (w *Writer) consume(ctx context.Context, events []event.Event, preskipped []SkippedEvent, opts Options) (Result, error) {
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeShadow
	}

	var res Result
	working := opts.Snapshot.Clone()

	failedByDomain := make(map[string]int)
	skipByReason := make(map[string]int)

	// Every skip counts against its domain, whatever the reason.
	skip := func(evt event.Event, reason string) {
		res.Skipped = append(res.Skipped, SkippedEvent{Event: evt, Reason: reason})
		skipByReason[reason]++
		domain := evt.Domain
		if domain == "" {
			domain = "unknown"
		}
		failedByDomain[domain]++
	}
	for _, skipped := range preskipped {
		skip(skipped.Event, skipped.Reason)
	}

	for _, evt := range events {
		if validation := event.Validate(evt); !validation.Valid() {
			skip(evt, SkipInvalidEvent)
			continue
		}

		if _, dup := w.State.Seen(evt.IdempotencyKey); dup {
			skip(evt, SkipDuplicateIdempotency)
			w.State.recordConflict(ConflictIdempotency)
			continue
		}

		// Staleness is decided before command synthesis so a stale event
		// reports stale_event even when synthesis would yield nothing.
		if w.isStale(evt, working, opts.Versions) {
			skip(evt, SkipStaleEvent)
			w.State.recordConflict(ConflictStaleEvent)
			continue
		}

		commands := w.buildCommands(evt, working, now)
		if len(commands) == 0 {
			skip(evt, SkipNoCommand)
			continue
		}

		commands = withExpectedVersion(commands, evt.ExpectedVersion)

		w.State.Remember(evt.IdempotencyKey, evt.ID)
		working = ApplyCommandsToSnapshot(working, commands)
		res.Accepted = append(res.Accepted, evt)
		res.Commands = append(res.Commands, commands...)
	}

	res.AuditCommands = w.auditCommands(res.Accepted, mode, now)
	res.Snapshot = working

	res.Metrics = Metrics{
		Backlog:           opts.Backlog,
		AcceptedCount:     len(res.Accepted),
		SkippedCount:      len(res.Skipped),
		CommandCount:      len(res.Commands),
		AuditCommandCount: len(res.AuditCommands),
		FailedByDomain:    failedByDomain,
		SkipByReason:      skipByReason,
		UpdatedAt:         now.UnixMilli(),
	}
	w.State.setMetrics(res.Metrics)

	if mode == ModeApply && opts.Apply != nil && len(res.Commands) > 0 {
		all := make([]Command, 0, len(res.Commands)+len(res.AuditCommands))
		all = append(all, res.Commands...)
		all = append(all, res.AuditCommands...)
		if err := opts.Apply(ctx, all); err != nil {
			return res, err
		}
	}
	return res, nil
}

func withExpectedVersion(commands []Command, expected *int64) []Command {
	if expected == nil {
		return commands
	}
	version := *expected
	if version < 0 {
		version = 0
	}
	out := make([]Command, len(commands))
	for i, cmd := range commands {
		cmd.ExpectedRowVersion = &version
		out[i] = cmd
	}
	return out
}

func (w *Writer) buildCommands(evt event.Event, working sheet.Snapshot, now time.Time) []Command {
	switch evt.Domain {
	case mapping.DomainGlobalState:
		return globalCommands(evt, working)
	case mapping.DomainCharacter:
		return characterCommands(evt, working)
	case mapping.DomainInventory:
		return inventoryCommands(evt, working, now)
	default:
		if binding, ok := w.Registry[evt.Domain]; ok {
			return genericCommands(evt, binding)
		}
		return nil
	}
}

// isStale reports whether the event's expected version lags the tracked
// version of the row it targets. Events whose target row cannot be
// resolved are never stale.
func (w *Writer) isStale(evt event.Event, working sheet.Snapshot, versions VersionSource) bool {
	if evt.ExpectedVersion == nil || versions == nil {
		return false
	}
	sheetID, rowID, ok := w.versionTarget(evt, working)
	if !ok {
		return false
	}
	return versions.RowVersion(sheetID, rowID) > *evt.ExpectedVersion
}

// versionTarget resolves the row whose version guards the event, per
// domain: the singleton global row, the entity's resource row, the
// inventory row the payload or path addresses, or the registry binding's
// row for sheet-addressed domains.
func (w *Writer) versionTarget(evt event.Event, working sheet.Snapshot) (sheet.ID, string, bool) {
	switch evt.Domain {
	case mapping.DomainGlobalState:
		return sheet.SysGlobalState, sheet.GlobalStateRowID, true
	case mapping.DomainCharacter:
		return sheet.CharacterResources, characterEntity(evt), true
	case mapping.DomainInventory:
		if rowID := inventoryVersionRow(evt, working); rowID != "" {
			return sheet.ItemInventory, rowID, true
		}
		return "", "", false
	default:
		binding, ok := w.Registry[evt.Domain]
		if !ok {
			return "", "", false
		}
		var payload sheet.Row
		if obj, isObj := evt.Value.Object(); isObj {
			payload = sheet.Row(obj)
		}
		if rowID := resolveBindingRowID(evt, binding, payload); rowID != "" {
			return binding.SheetID, rowID, true
		}
		return "", "", false
	}
}

// resolveField picks the sheet column addressed by an event path. Legacy
// location and weather spellings are folded into their canonical columns.
func resolveField(path string) string {
	normalized := mapping.NormalizePath(path)
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, ".")
	field := parts[len(parts)-1]

	switch parts[0] {
	case "角色":
		if len(parts) > 1 {
			field = parts[1]
		} else {
			return ""
		}
	case "背包":
		if len(parts) > 2 {
			field = parts[2]
		} else {
			return ""
		}
	case "世界坐标":
		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "x":
				return "世界坐标X"
			case "y":
				return "世界坐标Y"
			}
		}
		return "世界坐标"
	}

	switch field {
	case "当前地点":
		return "当前场景"
	case "天气":
		return "天气状况"
	}
	return field
}

func snapshotRow(working sheet.Snapshot, sheetID sheet.ID, rowID string) (sheet.Row, bool) {
	tbl := working.Table(sheetID)
	for _, row := range tbl.Rows {
		if id, ok := row.KeyValue(tbl.KeyField); ok && id == rowID {
			return row, true
		}
	}
	return nil, false
}

func rowNumber(row sheet.Row, field string) float64 {
	if row == nil {
		return 0
	}
	if num, ok := jsonval.Number(row[field]); ok {
		return num
	}
	return 0
}

func globalCommands(evt event.Event, working sheet.Snapshot) []Command {
	const keyField = "_global_id"
	base := sheet.Row{keyField: sheet.GlobalStateRowID}

	field := resolveField(evt.Path)

	switch evt.Op {
	case event.OpSet:
		if field == "" {
			return nil
		}
		if field == "世界坐标" {
			coords, ok := evt.Value.Object()
			if !ok {
				return nil
			}
			row := base.Clone()
			if x, xOK := coordNumber(coords, "x", "X", "世界坐标X"); xOK {
				row["世界坐标X"] = math.Round(x)
			}
			if y, yOK := coordNumber(coords, "y", "Y", "世界坐标Y"); yOK {
				row["世界坐标Y"] = math.Round(y)
			}
			if len(row) == 1 {
				return nil
			}
			return []Command{globalUpsert(evt.ID, row)}
		}
		row := base.Clone()
		row[field] = evt.Value.Clone().Raw()
		return []Command{globalUpsert(evt.ID, row)}
	case event.OpAdd:
		if field == "" {
			return nil
		}
		delta, ok := evt.Value.Number()
		if !ok {
			return nil
		}
		current, _ := snapshotRow(working, sheet.SysGlobalState, sheet.GlobalStateRowID)
		row := base.Clone()
		row[field] = rowNumber(current, field) + delta
		return []Command{globalUpsert(evt.ID, row)}
	case event.OpDelete:
		if field == "" {
			return nil
		}
		row := base.Clone()
		if field == "世界坐标" {
			row["世界坐标X"] = nil
			row["世界坐标Y"] = nil
		} else {
			row[field] = nil
		}
		return []Command{globalUpsert(evt.ID, row)}
	case event.OpUpsert:
		payload, ok := evt.Value.Object()
		if !ok {
			return nil
		}
		row := normalizeGlobalPayload(payload)
		for key, value := range base {
			row[key] = value
		}
		return []Command{globalUpsert(evt.ID, row)}
	}
	return nil
}

func globalUpsert(eventID string, row sheet.Row) Command {
	cmd := upsertCommand(sheet.SysGlobalState, "_global_id", eventID, row)
	cmd.ChangedFields = changedFields(row, "_global_id")
	return cmd
}

// normalizeGlobalPayload folds legacy global-state spellings into their
// canonical columns before the row is merged. A canonical field already
// present in the payload wins over its alias.
func normalizeGlobalPayload(payload map[string]any) sheet.Row {
	row := sheet.Row(payload).Clone()
	if location, ok := row["当前地点"]; ok {
		if _, has := row["当前场景"]; !has {
			row["当前场景"] = location
		}
		delete(row, "当前地点")
	}
	if weather, ok := row["天气"]; ok {
		if _, has := row["天气状况"]; !has {
			row["天气状况"] = weather
		}
		delete(row, "天气")
	}
	if coords, ok := row["世界坐标"].(map[string]any); ok {
		if x, xOK := coordNumber(coords, "x", "X", "世界坐标X"); xOK {
			if _, has := row["世界坐标X"]; !has {
				row["世界坐标X"] = math.Round(x)
			}
		}
		if y, yOK := coordNumber(coords, "y", "Y", "世界坐标Y"); yOK {
			if _, has := row["世界坐标Y"]; !has {
				row["世界坐标Y"] = math.Round(y)
			}
		}
		delete(row, "世界坐标")
	}
	return row
}

// coordNumber reads the first numeric coordinate among the aliased keys.
func coordNumber(coords map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if raw, ok := coords[key]; ok {
			if num, numOK := jsonval.Number(raw); numOK {
				return num, true
			}
		}
	}
	return 0, false
}

func characterEntity(evt event.Event) string {
	entity := strings.TrimSpace(evt.EntityID)
	if entity == "" || entity == "entity" {
		return sheet.DefaultCharacter
	}
	return entity
}

func characterCommands(evt event.Event, working sheet.Snapshot) []Command {
	const keyField = "CHAR_ID"
	entity := characterEntity(evt)
	base := sheet.Row{keyField: entity}

	field := resolveField(evt.Path)

	switch evt.Op {
	case event.OpSet:
		if field == "" {
			return nil
		}
		row := base.Clone()
		row[field] = evt.Value.Clone().Raw()
		return []Command{characterUpsert(evt.ID, row)}
	case event.OpAdd:
		if field == "" {
			return nil
		}
		delta, ok := evt.Value.Number()
		if !ok {
			return nil
		}
		current, _ := snapshotRow(working, sheet.CharacterResources, entity)
		row := base.Clone()
		row[field] = rowNumber(current, field) + delta
		return []Command{characterUpsert(evt.ID, row)}
	case event.OpDelete:
		if field == "" {
			return nil
		}
		row := base.Clone()
		row[field] = nil
		return []Command{characterUpsert(evt.ID, row)}
	case event.OpUpsert:
		payload, ok := evt.Value.Object()
		if !ok {
			return nil
		}
		row := sheet.Row(payload).Clone()
		row[keyField] = entity
		return []Command{characterUpsert(evt.ID, row)}
	}
	return nil
}

func characterUpsert(eventID string, row sheet.Row) Command {
	cmd := upsertCommand(sheet.CharacterResources, "CHAR_ID", eventID, row)
	cmd.ChangedFields = changedFields(row, "CHAR_ID")
	return cmd
}

func changedFields(row sheet.Row, keyField string) []string {
	fields := make([]string, 0, len(row))
	for field := range row {
		if field == keyField {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}
