package pharmacyorder

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/dispensing/internal/platform/db"
	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

const (
	table            = "pharmacy_order"
	routeTable       = "pharmacy_order_route"
	componentTable   = "pharmacy_order_component"
	timingTable      = "pharmacy_order_timing"
	instructionTable = "pharmacy_order_instruction"
)

type repoPG struct {
	pool db.DB
}

func NewRepo(pool db.DB) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.DB {
	return db.Executor(ctx, r.pool)
}

const orderColumns = `key, facility_key, encounter_key, order_id, status, description, prn, start_utc, stop_utc`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.Key, &o.FacilityKey, &o.EncounterKey, &o.OrderID, &o.Status,
		&o.Description, &o.PRN, &o.StartUTC, &o.StopUTC)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) getOne(ctx context.Context, sql string, args ...any) (*Order, error) {
	q := r.conn(ctx)
	o, err := scanOrder(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadChildren(ctx, q, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repoPG) Get(ctx context.Context, key uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM pharmacy_order WHERE key = $1`, key)
}

func (r *repoPG) GetByOrderID(ctx context.Context, facilityKey uuid.UUID, orderID string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM pharmacy_order
		WHERE facility_key = $1 AND order_id = $2`, facilityKey, orderID)
}

func (r *repoPG) ListByEncounter(ctx context.Context, encounterKey uuid.UUID) ([]*Order, error) {
	return r.ListByEncounters(ctx, []uuid.UUID{encounterKey})
}

// ListByEncounters reads the orders of several encounters with one query per
// table and joins the child rows to their orders in memory.
func (r *repoPG) ListByEncounters(ctx context.Context, encounterKeys []uuid.UUID) ([]*Order, error) {
	if len(encounterKeys) == 0 {
		return nil, nil
	}
	q := r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT `+orderColumns+` FROM pharmacy_order
		WHERE encounter_key = ANY($1)
		ORDER BY encounter_key, start_utc NULLS LAST, order_id`, encounterKeys)
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, sqlerr.ClassifyFor(table, err)
	}
	if err := loadChildren(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func loadChildren(ctx context.Context, q db.DB, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byKey := make(map[uuid.UUID]*Order, len(orders))
	keys := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		byKey[o.Key] = o
		keys = append(keys, o.Key)
	}
	if err := loadRoutes(ctx, q, keys, byKey); err != nil {
		return err
	}
	if err := loadComponents(ctx, q, keys, byKey); err != nil {
		return err
	}
	if err := loadTimings(ctx, q, keys, byKey); err != nil {
		return err
	}
	return loadInstructions(ctx, q, keys, byKey)
}

func loadRoutes(ctx context.Context, q db.DB, keys []uuid.UUID, byKey map[uuid.UUID]*Order) error {
	rows, err := q.Query(ctx, `
		SELECT order_key, route_code, description
		FROM pharmacy_order_route WHERE order_key = ANY($1)
		ORDER BY route_code`, keys)
	if err != nil {
		return sqlerr.ClassifyFor(routeTable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderKey uuid.UUID
		var rt Route
		if err := rows.Scan(&orderKey, &rt.Code, &rt.Description); err != nil {
			return sqlerr.ClassifyFor(routeTable, err)
		}
		if o := byKey[orderKey]; o != nil {
			o.Routes = append(o.Routes, rt)
		}
	}
	return sqlerr.ClassifyFor(routeTable, rows.Err())
}

func loadComponents(ctx context.Context, q db.DB, keys []uuid.UUID, byKey map[uuid.UUID]*Order) error {
	rows, err := q.Query(ctx, `
		SELECT order_key, key, item_id, description, strength, strength_uom_key, volume, volume_uom_key
		FROM pharmacy_order_component WHERE order_key = ANY($1)
		ORDER BY item_id`, keys)
	if err != nil {
		return sqlerr.ClassifyFor(componentTable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderKey uuid.UUID
		var c Component
		if err := rows.Scan(&orderKey, &c.Key, &c.ItemID, &c.Description,
			&c.Strength, &c.StrengthUOMKey, &c.Volume, &c.VolumeUOMKey); err != nil {
			return sqlerr.ClassifyFor(componentTable, err)
		}
		if o := byKey[orderKey]; o != nil {
			o.Components = append(o.Components, c)
		}
	}
	return sqlerr.ClassifyFor(componentTable, rows.Err())
}

func loadTimings(ctx context.Context, q db.DB, keys []uuid.UUID, byKey map[uuid.UUID]*Order) error {
	rows, err := q.Query(ctx, `
		SELECT order_key, key, repeat_pattern_key, frequency_text, start_utc, end_utc, administration_times
		FROM pharmacy_order_timing WHERE order_key = ANY($1)
		ORDER BY start_utc NULLS FIRST, key`, keys)
	if err != nil {
		return sqlerr.ClassifyFor(timingTable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderKey uuid.UUID
		var t Timing
		if err := rows.Scan(&orderKey, &t.Key, &t.RepeatPatternKey, &t.FrequencyText,
			&t.StartUTC, &t.EndUTC, &t.AdministrationTimes); err != nil {
			return sqlerr.ClassifyFor(timingTable, err)
		}
		if o := byKey[orderKey]; o != nil {
			o.Timings = append(o.Timings, t)
		}
	}
	return sqlerr.ClassifyFor(timingTable, rows.Err())
}

func loadInstructions(ctx context.Context, q db.DB, keys []uuid.UUID, byKey map[uuid.UUID]*Order) error {
	rows, err := q.Query(ctx, `
		SELECT order_key, key, instruction_type, text
		FROM pharmacy_order_instruction WHERE order_key = ANY($1)
		ORDER BY instruction_type, key`, keys)
	if err != nil {
		return sqlerr.ClassifyFor(instructionTable, err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderKey uuid.UUID
		var in Instruction
		if err := rows.Scan(&orderKey, &in.Key, &in.Type, &in.Text); err != nil {
			return sqlerr.ClassifyFor(instructionTable, err)
		}
		if o := byKey[orderKey]; o != nil {
			o.Instructions = append(o.Instructions, in)
		}
	}
	return sqlerr.ClassifyFor(instructionTable, rows.Err())
}

// -- child writes --

func insertRoutes(ctx context.Context, q db.DB, orderKey uuid.UUID, routes []Route) error {
	if len(routes) == 0 {
		return nil
	}
	codes := make([]string, len(routes))
	descriptions := make([]*string, len(routes))
	for i, rt := range routes {
		codes[i], descriptions[i] = rt.Code, rt.Description
	}
	_, err := q.Exec(ctx, `
		INSERT INTO pharmacy_order_route (order_key, route_code, description)
		SELECT $1, c, d FROM unnest($2::text[], $3::text[]) AS t (c, d)`,
		orderKey, codes, descriptions)
	return sqlerr.ClassifyFor(routeTable, err)
}

func insertComponent(ctx context.Context, q db.DB, orderKey uuid.UUID, c *Component) error {
	if c.Key == uuid.Nil {
		c.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO pharmacy_order_component (key, order_key, item_id, description,
			strength, strength_uom_key, volume, volume_uom_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.Key, orderKey, c.ItemID, c.Description, c.Strength, c.StrengthUOMKey, c.Volume, c.VolumeUOMKey)
	return sqlerr.ClassifyFor(componentTable, err)
}

func adminTimes(t *Timing) []string {
	if t.AdministrationTimes == nil {
		return []string{}
	}
	return t.AdministrationTimes
}

func insertTiming(ctx context.Context, q db.DB, orderKey uuid.UUID, t *Timing) error {
	if t.Key == uuid.Nil {
		t.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO pharmacy_order_timing (key, order_key, repeat_pattern_key, frequency_text,
			start_utc, end_utc, administration_times)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.Key, orderKey, t.RepeatPatternKey, t.FrequencyText, t.StartUTC, t.EndUTC, adminTimes(t))
	return sqlerr.ClassifyFor(timingTable, err)
}

func insertInstruction(ctx context.Context, q db.DB, orderKey uuid.UUID, in *Instruction) error {
	if in.Key == uuid.Nil {
		in.Key = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO pharmacy_order_instruction (key, order_key, instruction_type, text)
		VALUES ($1, $2, $3, $4)`,
		in.Key, orderKey, string(in.Type), in.Text)
	return sqlerr.ClassifyFor(instructionTable, err)
}

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	if o.Key == uuid.Nil {
		o.Key = uuid.New()
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		_, err := q.Exec(ctx, `
			INSERT INTO pharmacy_order (key, facility_key, encounter_key, order_id, status,
				description, prn, start_utc, stop_utc)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.Key, o.FacilityKey, o.EncounterKey, o.OrderID, string(o.Status),
			o.Description, o.PRN, o.StartUTC, o.StopUTC)
		if err != nil {
			return sqlerr.ClassifyFor(table, err)
		}
		if err := insertRoutes(ctx, q, o.Key, o.Routes); err != nil {
			return err
		}
		for i := range o.Components {
			if err := insertComponent(ctx, q, o.Key, &o.Components[i]); err != nil {
				return err
			}
		}
		for i := range o.Timings {
			if err := insertTiming(ctx, q, o.Key, &o.Timings[i]); err != nil {
				return err
			}
		}
		for i := range o.Instructions {
			if err := insertInstruction(ctx, q, o.Key, &o.Instructions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func currentKeys(ctx context.Context, q db.DB, childTable string, orderKey uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT key FROM `+childTable+` WHERE order_key = $1`, orderKey)
	if err != nil {
		return nil, sqlerr.ClassifyFor(childTable, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, sqlerr.ClassifyFor(childTable, err)
	}
	return keys, nil
}

func removeKeys(ctx context.Context, q db.DB, childTable string, orderKey uuid.UUID, keys []uuid.UUID) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `DELETE FROM `+childTable+` WHERE order_key = $1 AND key = ANY($2)`, orderKey, keys)
	return sqlerr.ClassifyFor(childTable, err)
}

// Update rewrites the order header, then reconciles routes by code and the
// other child collections by key. Facility, encounter and order id are fixed
// once the order exists, and status moves only through UpdateStatus. The
// header UPDATE holds the order row lock for the rest of the transaction and
// skips orders that reached a terminal status.
func (r *repoPG) Update(ctx context.Context, o *Order) (Changes, error) {
	var changes Changes
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		err := q.QueryRow(ctx, `
			UPDATE pharmacy_order SET description = $2, prn = $3, start_utc = $4, stop_utc = $5,
				updated_utc = NOW()
			WHERE key = $1 AND status NOT IN ('DISCONTINUED', 'COMPLETED')
			RETURNING facility_key, encounter_key, order_id, status`,
			o.Key, o.Description, o.PRN, o.StartUTC, o.StopUTC).
			Scan(&o.FacilityKey, &o.EncounterKey, &o.OrderID, &o.Status)
		if errors.Is(err, pgx.ErrNoRows) {
			return headerNotUpdated(ctx, q, o.Key)
		}
		if err != nil {
			return sqlerr.ClassifyFor(table, err)
		}

		if changes.Routes, err = updateRoutes(ctx, q, o.Key, o.Routes); err != nil {
			return err
		}
		if changes.Components, err = updateComponents(ctx, q, o.Key, o.Components); err != nil {
			return err
		}
		if changes.Timings, err = updateTimings(ctx, q, o.Key, o.Timings); err != nil {
			return err
		}
		changes.Instructions, err = updateInstructions(ctx, q, o.Key, o.Instructions)
		return err
	})
	return changes, err
}

// headerNotUpdated explains why the guarded header UPDATE matched no row.
func headerNotUpdated(ctx context.Context, q db.DB, key uuid.UUID) error {
	cur := &Order{Key: key}
	err := q.QueryRow(ctx, `SELECT order_id, status FROM pharmacy_order WHERE key = $1`, key).
		Scan(&cur.OrderID, &cur.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return sqlerr.NotFoundFor(table)
	}
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if cur.Status.Terminal() {
		return terminalConflict(cur)
	}
	return sqlerr.ConcurrencyFor(table)
}

func updateRoutes(ctx context.Context, q db.DB, orderKey uuid.UUID, routes []Route) (reconcile.Summary, error) {
	rows, err := q.Query(ctx, `SELECT route_code FROM pharmacy_order_route WHERE order_key = $1`, orderKey)
	if err != nil {
		return reconcile.Summary{}, sqlerr.ClassifyFor(routeTable, err)
	}
	current, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return reconcile.Summary{}, sqlerr.ClassifyFor(routeTable, err)
	}

	byCode := make(map[string]Route, len(routes))
	desired := make([]string, 0, len(routes))
	for _, rt := range routes {
		byCode[rt.Code] = rt
		desired = append(desired, rt.Code)
	}
	diff := reconcile.Diff(current, desired)

	if len(diff.Removed) > 0 {
		if _, err := q.Exec(ctx,
			`DELETE FROM pharmacy_order_route WHERE order_key = $1 AND route_code = ANY($2)`,
			orderKey, diff.Removed); err != nil {
			return reconcile.Summary{}, sqlerr.ClassifyFor(routeTable, err)
		}
	}
	for _, code := range diff.Kept {
		if _, err := q.Exec(ctx,
			`UPDATE pharmacy_order_route SET description = $3 WHERE order_key = $1 AND route_code = $2`,
			orderKey, code, byCode[code].Description); err != nil {
			return reconcile.Summary{}, sqlerr.ClassifyFor(routeTable, err)
		}
	}
	added := make([]Route, 0, len(diff.Added))
	for _, code := range diff.Added {
		added = append(added, byCode[code])
	}
	if err := insertRoutes(ctx, q, orderKey, added); err != nil {
		return reconcile.Summary{}, err
	}
	summary := diff.Summary()
	summary.Updated = len(diff.Kept)
	return summary, nil
}

func updateComponents(ctx context.Context, q db.DB, orderKey uuid.UUID, components []Component) (reconcile.Summary, error) {
	current, err := currentKeys(ctx, q, componentTable, orderKey)
	if err != nil {
		return reconcile.Summary{}, err
	}
	diff := reconcile.Items(current, components, func(c Component) uuid.UUID { return c.Key })
	if err := removeKeys(ctx, q, componentTable, orderKey, diff.Removed); err != nil {
		return reconcile.Summary{}, err
	}
	for _, c := range diff.Updated {
		if _, err := q.Exec(ctx, `
			UPDATE pharmacy_order_component SET item_id = $3, description = $4, strength = $5,
				strength_uom_key = $6, volume = $7, volume_uom_key = $8
			WHERE order_key = $1 AND key = $2`,
			orderKey, c.Key, c.ItemID, c.Description, c.Strength, c.StrengthUOMKey, c.Volume, c.VolumeUOMKey); err != nil {
			return reconcile.Summary{}, sqlerr.ClassifyFor(componentTable, err)
		}
	}
	for i := range diff.Added {
		if err := insertComponent(ctx, q, orderKey, &diff.Added[i]); err != nil {
			return reconcile.Summary{}, err
		}
	}
	return diff.Summary(), nil
}

func updateTimings(ctx context.Context, q db.DB, orderKey uuid.UUID, timings []Timing) (reconcile.Summary, error) {
	current, err := currentKeys(ctx, q, timingTable, orderKey)
	if err != nil {
		return reconcile.Summary{}, err
	}
	diff := reconcile.Items(current, timings, func(t Timing) uuid.UUID { return t.Key })
	if err := removeKeys(ctx, q, timingTable, orderKey, diff.Removed); err != nil {
		return reconcile.Summary{}, err
	}
	for i := range diff.Updated {
		t := &diff.Updated[i]
		if _, err := q.Exec(ctx, `
			UPDATE pharmacy_order_timing SET repeat_pattern_key = $3, frequency_text = $4,
				start_utc = $5, end_utc = $6, administration_times = $7
			WHERE order_key = $1 AND key = $2`,
			orderKey, t.Key, t.RepeatPatternKey, t.FrequencyText, t.StartUTC, t.EndUTC, adminTimes(t)); err != nil {
			return reconcile.Summary{}, sqlerr.ClassifyFor(timingTable, err)
		}
	}
	for i := range diff.Added {
		if err := insertTiming(ctx, q, orderKey, &diff.Added[i]); err != nil {
			return reconcile.Summary{}, err
		}
	}
	return diff.Summary(), nil
}

func updateInstructions(ctx context.Context, q db.DB, orderKey uuid.UUID, instructions []Instruction) (reconcile.Summary, error) {
	current, err := currentKeys(ctx, q, instructionTable, orderKey)
	if err != nil {
		return reconcile.Summary{}, err
	}
	diff := reconcile.Items(current, instructions, func(in Instruction) uuid.UUID { return in.Key })
	if err := removeKeys(ctx, q, instructionTable, orderKey, diff.Removed); err != nil {
		return reconcile.Summary{}, err
	}
	for _, in := range diff.Updated {
		if _, err := q.Exec(ctx, `
			UPDATE pharmacy_order_instruction SET instruction_type = $3, text = $4
			WHERE order_key = $1 AND key = $2`,
			orderKey, in.Key, string(in.Type), in.Text); err != nil {
			return reconcile.Summary{}, sqlerr.ClassifyFor(instructionTable, err)
		}
	}
	for i := range diff.Added {
		if err := insertInstruction(ctx, q, orderKey, &diff.Added[i]); err != nil {
			return reconcile.Summary{}, err
		}
	}
	return diff.Summary(), nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, key uuid.UUID, from, to Status) error {
	q := r.conn(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE pharmacy_order SET status = $3, updated_utc = NOW()
		WHERE key = $1 AND status = $2`,
		key, string(from), string(to))
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pharmacy_order WHERE key = $1)`, key).Scan(&exists); err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if !exists {
		return sqlerr.NotFoundFor(table)
	}
	return sqlerr.ConcurrencyFor(table)
}

func (r *repoPG) Delete(ctx context.Context, key uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM pharmacy_order WHERE key = $1`, key)
	if err != nil {
		return sqlerr.ClassifyFor(table, err)
	}
	if tag.RowsAffected() == 0 {
		return sqlerr.NotFoundFor(table)
	}
	return nil
}
