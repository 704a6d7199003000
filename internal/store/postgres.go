package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/TechniCodeCamp2025/fleet-api/internal/config"
	"github.com/TechniCodeCamp2025/fleet-api/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// MigrateDir applies every .sql file in dir in lexical order. Dev helper;
// production migrations run out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(data)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (p *Postgres) SaveDataset(ctx context.Context, tenantID string, ds *model.Dataset) (DatasetInfo, error) {
	id := uuid.New().String()
	info := datasetInfo(id, tenantID, ds)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return DatasetInfo{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO datasets (id, tenant_id, created_at, first_date, last_date) VALUES ($1,$2,$3,$4,$5)`,
		id, tenantID, info.CreatedAt, nullTime(info.FirstDate), nullTime(info.LastDate))
	if err != nil {
		return DatasetInfo{}, err
	}
	for _, l := range ds.Locations {
		_, err = tx.ExecContext(ctx, `INSERT INTO locations (dataset_id, id, name, lat, long, is_hub) VALUES ($1,$2,$3,$4,$5,$6)`,
			id, l.ID, l.Name, l.Lat, l.Long, l.IsHub)
		if err != nil {
			return DatasetInfo{}, err
		}
	}
	for _, e := range ds.Edges {
		_, err = tx.ExecContext(ctx, `INSERT INTO location_relations (dataset_id, id, id_loc_1, id_loc_2, dist_km, time_hours) VALUES ($1,$2,$3,$4,$5,$6)`,
			id, e.ID, e.FromID, e.ToID, e.DistanceKm, e.TimeHours)
		if err != nil {
			return DatasetInfo{}, err
		}
	}
	for _, v := range ds.Vehicles {
		_, err = tx.ExecContext(ctx, `INSERT INTO vehicles (dataset_id, id, registration, brand, service_interval_km, leasing_start_km, leasing_limit_km, leasing_start_date, leasing_end_date, current_odometer_km, current_location_id)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			id, v.ID, v.Registration, v.Brand, v.ServiceIntervalKm, v.LeasingStartKm, v.LeasingLimitKm, v.LeaseStartDate, v.LeaseEndDate, v.CurrentOdometerKm, v.CurrentLocationID)
		if err != nil {
			return DatasetInfo{}, err
		}
	}
	for _, r := range ds.Routes {
		_, err = tx.ExecContext(ctx, `INSERT INTO routes (dataset_id, id, start_datetime, end_datetime, distance_km) VALUES ($1,$2,$3,$4,$5)`,
			id, r.ID, r.Start, r.End, r.DistanceKm)
		if err != nil {
			return DatasetInfo{}, err
		}
		for _, s := range r.Segments {
			_, err = tx.ExecContext(ctx, `INSERT INTO segments (dataset_id, id, route_id, seq, start_loc_id, end_loc_id, start_datetime, end_datetime, relation_id)
                VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				id, s.ID, s.RouteID, s.Seq, s.StartLocID, s.EndLocID, s.Start, s.End, s.RelationID)
			if err != nil {
				return DatasetInfo{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return DatasetInfo{}, err
	}
	return info, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (p *Postgres) GetDataset(ctx context.Context, tenantID, id string) (*model.Dataset, error) {
	if _, err := p.GetDatasetInfo(ctx, tenantID, id); err != nil {
		return nil, err
	}
	ds := &model.Dataset{}

	rows, err := p.db.QueryContext(ctx, `SELECT id, name, lat, long, is_hub FROM locations WHERE dataset_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Lat, &l.Long, &l.IsHub); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Locations = append(ds.Locations, l)
	}
	rows.Close()

	rows, err = p.db.QueryContext(ctx, `SELECT id, id_loc_1, id_loc_2, dist_km, time_hours FROM location_relations WHERE dataset_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var e model.LocationEdge
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.DistanceKm, &e.TimeHours); err != nil {
			rows.Close()
			return nil, err
		}
		ds.Edges = append(ds.Edges, e)
	}
	rows.Close()

	rows, err = p.db.QueryContext(ctx, `SELECT id, registration, brand, service_interval_km, leasing_start_km, leasing_limit_km, leasing_start_date, leasing_end_date, current_odometer_km, current_location_id FROM vehicles WHERE dataset_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v model.Vehicle
		var loc sql.NullInt64
		if err := rows.Scan(&v.ID, &v.Registration, &v.Brand, &v.ServiceIntervalKm, &v.LeasingStartKm, &v.LeasingLimitKm, &v.LeaseStartDate, &v.LeaseEndDate, &v.CurrentOdometerKm, &loc); err != nil {
			rows.Close()
			return nil, err
		}
		if loc.Valid {
			l := loc.Int64
			v.CurrentLocationID = &l
		}
		ds.Vehicles = append(ds.Vehicles, v)
	}
	rows.Close()

	rows, err = p.db.QueryContext(ctx, `SELECT id, start_datetime, end_datetime, distance_km FROM routes WHERE dataset_id=$1 ORDER BY start_datetime, id`, id)
	if err != nil {
		return nil, err
	}
	routeIdx := map[int64]int{}
	for rows.Next() {
		var r model.Route
		if err := rows.Scan(&r.ID, &r.Start, &r.End, &r.DistanceKm); err != nil {
			rows.Close()
			return nil, err
		}
		routeIdx[r.ID] = len(ds.Routes)
		ds.Routes = append(ds.Routes, r)
	}
	rows.Close()

	rows, err = p.db.QueryContext(ctx, `SELECT id, route_id, seq, start_loc_id, end_loc_id, start_datetime, end_datetime, relation_id FROM segments WHERE dataset_id=$1 ORDER BY route_id, seq`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var s model.Segment
		var rel sql.NullInt64
		if err := rows.Scan(&s.ID, &s.RouteID, &s.Seq, &s.StartLocID, &s.EndLocID, &s.Start, &s.End, &rel); err != nil {
			rows.Close()
			return nil, err
		}
		if rel.Valid {
			v := rel.Int64
			s.RelationID = &v
		}
		if i, ok := routeIdx[s.RouteID]; ok {
			ds.Routes[i].Segments = append(ds.Routes[i].Segments, s)
		}
	}
	rows.Close()

	return ds, nil
}

func (p *Postgres) GetDatasetInfo(ctx context.Context, tenantID, id string) (DatasetInfo, error) {
	var info DatasetInfo
	var first, last sql.NullTime
	err := p.db.QueryRowContext(ctx, `SELECT d.id, d.tenant_id, d.created_at, d.first_date, d.last_date,
        (SELECT count(*) FROM locations WHERE dataset_id=d.id),
        (SELECT count(*) FROM location_relations WHERE dataset_id=d.id),
        (SELECT count(*) FROM vehicles WHERE dataset_id=d.id),
        (SELECT count(*) FROM routes WHERE dataset_id=d.id)
        FROM datasets d WHERE d.id=$1 AND d.tenant_id=$2`, id, tenantID).
		Scan(&info.ID, &info.TenantID, &info.CreatedAt, &first, &last, &info.Locations, &info.Edges, &info.Vehicles, &info.Routes)
	if errors.Is(err, sql.ErrNoRows) {
		return DatasetInfo{}, ErrNotFound
	}
	if err != nil {
		return DatasetInfo{}, err
	}
	if first.Valid {
		info.FirstDate = first.Time
	}
	if last.Valid {
		info.LastDate = last.Time
	}
	return info, nil
}

func (p *Postgres) CreateRun(ctx context.Context, tenantID, datasetID string, cfg *config.Config) (Run, error) {
	if _, err := p.GetDatasetInfo(ctx, tenantID, datasetID); err != nil {
		return Run{}, err
	}
	r := Run{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		DatasetID: datasetID,
		Status:    RunPending,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, dataset_id, status, config, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, tenantID, datasetID, r.Status, toJSON(cfg), r.CreatedAt)
	if err != nil {
		return Run{}, err
	}
	return r, nil
}

func (p *Postgres) UpdateRunStatus(ctx context.Context, id, status, errMsg string) error {
	var res sql.Result
	var err error
	switch status {
	case RunRunning:
		res, err = p.db.ExecContext(ctx, `UPDATE runs SET status=$2, error=$3, started_at=now() WHERE id=$1`, id, status, errMsg)
	case RunCompleted, RunFailed, RunCancelled:
		res, err = p.db.ExecContext(ctx, `UPDATE runs SET status=$2, error=$3, finished_at=now() WHERE id=$1`, id, status, errMsg)
	default:
		res, err = p.db.ExecContext(ctx, `UPDATE runs SET status=$2, error=$3 WHERE id=$1`, id, status, errMsg)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveRunResult(ctx context.Context, id string, res *model.RunResult) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	out, err := tx.ExecContext(ctx, `UPDATE runs SET summary=$2 WHERE id=$1`, id, toJSON(res.Summary))
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for i, a := range res.Assignments {
		_, err = tx.ExecContext(ctx, `INSERT INTO run_assignments (run_id, seq, route_id, vehicle_id, record) VALUES ($1,$2,$3,$4,$5)`,
			id, i, a.RouteID, a.VehicleID, toJSON(a))
		if err != nil {
			return err
		}
	}
	for _, u := range res.Unassigned {
		_, err = tx.ExecContext(ctx, `INSERT INTO run_unassigned (run_id, route_id, date, reasons) VALUES ($1,$2,$3,$4)`,
			id, u.RouteID, u.Date, toJSON(u.Reasons))
		if err != nil {
			return err
		}
	}
	for vid, st := range res.VehicleStates {
		_, err = tx.ExecContext(ctx, `INSERT INTO run_vehicle_states (run_id, vehicle_id, state) VALUES ($1,$2,$3)`,
			id, vid, toJSON(st))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var cfgRaw, sumRaw []byte
	var errMsg sql.NullString
	var started, finished sql.NullTime
	if err := row.Scan(&r.ID, &r.TenantID, &r.DatasetID, &r.Status, &errMsg, &cfgRaw, &sumRaw, &r.CreatedAt, &started, &finished); err != nil {
		return Run{}, err
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if len(cfgRaw) > 0 {
		cfg := config.Default()
		if json.Unmarshal(cfgRaw, cfg) == nil {
			r.Config = cfg
		}
	}
	if len(sumRaw) > 0 {
		var s model.RunSummary
		if json.Unmarshal(sumRaw, &s) == nil {
			r.Summary = &s
		}
	}
	if started.Valid {
		r.StartedAt = &started.Time
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return r, nil
}

const runCols = `id, tenant_id, dataset_id, status, error, config, summary, created_at, started_at, finished_at`

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (Run, error) {
	r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runCols+` FROM runs WHERE id=$1 AND tenant_id=$2`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]Run, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runCols+` FROM runs WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) ListAssignments(ctx context.Context, tenantID, runID, cursor string, limit int) ([]model.Assignment, string, error) {
	if _, err := p.GetRun(ctx, tenantID, runID); err != nil {
		return nil, "", err
	}
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &start)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT seq, record FROM run_assignments WHERE run_id=$1 AND seq >= $2 ORDER BY seq LIMIT $3`, runID, start, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Assignment{}
	lastSeq := 0
	for rows.Next() {
		var seq int
		var raw []byte
		if err := rows.Scan(&seq, &raw); err != nil {
			return nil, "", err
		}
		var a model.Assignment
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, "", err
		}
		out = append(out, a)
		lastSeq = seq
	}
	next := ""
	if len(out) == limit {
		next = fmt.Sprintf("%d", lastSeq+1)
	}
	return out, next, rows.Err()
}

func (p *Postgres) ListUnassigned(ctx context.Context, tenantID, runID string) ([]model.UnassignedRoute, error) {
	if _, err := p.GetRun(ctx, tenantID, runID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT route_id, date, reasons FROM run_unassigned WHERE run_id=$1 ORDER BY date, route_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.UnassignedRoute{}
	for rows.Next() {
		var u model.UnassignedRoute
		var raw []byte
		if err := rows.Scan(&u.RouteID, &u.Date, &raw); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(raw, &u.Reasons)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) GetVehicleStates(ctx context.Context, tenantID, runID string) (map[int64]*model.VehicleState, error) {
	if _, err := p.GetRun(ctx, tenantID, runID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT vehicle_id, state FROM run_vehicle_states WHERE run_id=$1`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]*model.VehicleState{}
	for rows.Next() {
		var vid int64
		var raw []byte
		if err := rows.Scan(&vid, &raw); err != nil {
			return nil, err
		}
		var st model.VehicleState
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		out[vid] = &st
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.TenantID, s.URL, toJSON(s.Events), s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
		return model.Subscription{}, err
	}
	_ = json.Unmarshal(events, &s.Events)
	return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3, delivered_at=now() WHERE id=$1`,
			id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5 WHERE id=$1`,
		id, lastError, responseCode, latencyMs, next)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id, event_type, status, attempts, url, last_error FROM webhook_deliveries WHERE tenant_id=$1 AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id, event_type, status, attempts, url, last_error FROM webhook_deliveries WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var id, eventType, st, url string
		var attempts int
		var lastError sql.NullString
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastError); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if lastError.Valid && lastError.String != "" {
			item["lastError"] = lastError.String
		}
		out = append(out, item)
	}
	return out, "", rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
