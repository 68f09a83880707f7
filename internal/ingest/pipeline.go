// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/tracelane/internal/config"
	"github.com/tomtom215/tracelane/internal/logging"
	"github.com/tomtom215/tracelane/internal/metrics"
	"github.com/tomtom215/tracelane/internal/models"
	"github.com/tomtom215/tracelane/internal/tasks"
)

const (
	StageReading    = "reading_file"
	StageProcessing = "processing"
)

// rollbackTimeout bounds cleanup of a failed job. It runs on a fresh
// context because the job context may already be expired.
const rollbackTimeout = 30 * time.Second

// Pipeline runs ingestion jobs.
type Pipeline struct {
	store      Store
	registry   *tasks.Registry
	cfg        config.IngestConfig
	jobTimeout time.Duration
}

// NewPipeline creates a pipeline. Detached jobs get a context bounded by
// jobTimeout.
func NewPipeline(store Store, registry *tasks.Registry, cfg config.IngestConfig, jobTimeout time.Duration) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.RowErrorLimit <= 0 {
		cfg.RowErrorLimit = 50
	}
	if cfg.DefaultDatetimeFormat == "" {
		cfg.DefaultDatetimeFormat = DefaultDatetimeFormat
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &Pipeline{store: store, registry: registry, cfg: cfg, jobTimeout: jobTimeout}
}

// Start registers an ingestion task and runs job in the background. The
// caller returns the task id to the client right away.
func (p *Pipeline) Start(job Job) tasks.Task {
	t := p.registry.Create(tasks.KindIngestion)
	go p.execute(t.ID, job)
	return t
}

func (p *Pipeline) execute(taskID string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()
	ctx = logging.ContextWithTaskID(ctx, taskID)

	start := time.Now()
	res, err := p.Run(ctx, job, func(patch tasks.Patch) {
		p.registry.Update(taskID, patch)
	})

	outcome := metrics.IngestOutcome{SourceKind: string(job.Kind), Err: err, Duration: time.Since(start)}
	if res != nil {
		outcome.Imported = res.ImportedCount
		outcome.Duplicates = res.DuplicateCount
		outcome.RowErrors = res.ErrorCount
		outcome.ReadersCreated = len(res.NewReaderIDs)
		outcome.ReadersRejected = len(res.RejectedReaderIDs)
	}
	metrics.RecordIngestJob(outcome)

	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("file", job.Filename).Msg("Ingestion failed")
		p.registry.Update(taskID, tasks.Failed(err.Error()))
		return
	}
	p.registry.Update(taskID, tasks.Completed(Summary(res), res))
}

// Summary is the human-readable completion message of a job.
func Summary(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed. %s records imported.", humanize.Comma(int64(r.ImportedCount)))
	if r.ErrorCount > 0 {
		fmt.Fprintf(&b, " %s rows with errors.", humanize.Comma(int64(r.ErrorCount)))
	}
	if r.DuplicateCount > 0 {
		fmt.Fprintf(&b, " %s duplicates skipped.", humanize.Comma(int64(r.DuplicateCount)))
	}
	return b.String()
}

// Run executes job synchronously and reports progress through report,
// which may be nil. The temporary upload is removed in every case. On error
// nothing the job wrote is left in the store.
func (p *Pipeline) Run(ctx context.Context, job Job, report func(tasks.Patch)) (res *Result, err error) {
	defer removeTemp(job.TempPath)
	if report == nil {
		report = func(tasks.Patch) {}
	}
	log := logging.Ctx(ctx)

	if job.Mapping == nil {
		return nil, fmt.Errorf("%w: no mapping", ErrMissingMapping)
	}
	if missing := (&Mapping{Kind: job.Kind, Columns: job.Mapping.Columns}).missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingMapping, strings.Join(missing, ", "))
	}

	report(tasks.Processing(StageReading, 0, "Reading file"))
	log.Info().
		Str("file", job.Filename).
		Str("size", fileSize(job.TempPath)).
		Int64("case_id", job.CaseID).
		Str("source_kind", string(job.Kind)).
		Msg("Ingestion started")

	table, err := ReadTable(job.TempPath, job.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", job.Filename, err)
	}
	cols, err := resolveColumns(table, job, p.cfg.DefaultDatetimeFormat)
	if err != nil {
		return nil, err
	}

	total := len(table.Rows)
	started := tasks.Processing(StageProcessing, 0, "Processing records")
	started.Total = &total
	report(started)

	file := &models.FileRecord{CaseID: job.CaseID, Filename: CleanFilename(job.Filename), SourceKind: job.Kind}
	if err = p.store.CreateFile(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to register file: %w", err)
	}
	defer func() {
		if err != nil {
			p.rollback(ctx, file.ID)
		}
	}()

	st := &jobState{
		job:      job,
		cols:     cols,
		file:     file,
		acct:     accounting{limit: p.cfg.RowErrorLimit},
		seen:     make(map[models.DedupKey]struct{}),
		readers:  make(map[string]*models.Reader),
		absent:   make(map[string]struct{}),
		rejected: make(map[string]Verdict),
	}

	for off := 0; off < total; off += p.cfg.BatchSize {
		if err = ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingestion interrupted: %w", err)
		}
		end := min(off+p.cfg.BatchSize, total)
		if job.Kind == models.SourceExternal {
			err = p.externalBatch(ctx, st, table.Rows[off:end], off)
		} else {
			err = p.presenceBatch(ctx, st, table.Rows[off:end], off)
		}
		if err != nil {
			return nil, err
		}
		report(tasks.Processing(StageProcessing, end*100/total,
			fmt.Sprintf("Processed %s of %s rows", humanize.Comma(int64(end)), humanize.Comma(int64(total)))))
	}

	stored, err := p.storeUpload(job, file.ID)
	if err != nil {
		return nil, err
	}
	if err = p.store.FinalizeFile(ctx, file.ID, st.acct.imported, stored); err != nil {
		discardStored(stored)
		return nil, fmt.Errorf("failed to finalize file record: %w", err)
	}
	file.RecordCount = st.acct.imported
	file.StoredPath = stored

	res = st.acct.result(file)
	log.Info().
		Int64("file_id", file.ID).
		Int("imported", res.ImportedCount).
		Int("duplicates", res.DuplicateCount).
		Int("row_errors", res.ErrorCount).
		Int("new_readers", len(res.NewReaderIDs)).
		Msg("Ingestion completed")
	return res, nil
}

func (p *Pipeline) rollback(ctx context.Context, fileID int64) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := p.store.DeleteFileCascade(rctx, fileID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Int64("file_id", fileID).Msg("Failed to roll back file record")
		return
	}
	logging.Ctx(ctx).Warn().Int64("file_id", fileID).Msg("Rolled back partially ingested file")
}

// jobState is the per-job memory shared across batches.
type jobState struct {
	job  Job
	cols columns
	file *models.FileRecord
	acct accounting

	seen     map[models.DedupKey]struct{}
	readers  map[string]*models.Reader // known to exist, including created ones
	absent   map[string]struct{}       // confirmed missing from the store
	rejected map[string]Verdict
}

type candidate struct {
	row int
	rec models.PresenceRecord
}

func (p *Pipeline) presenceBatch(ctx context.Context, st *jobState, rows [][]string, offset int) error {
	if st.job.Kind == models.SourceLPR {
		if err := p.prefetchReaders(ctx, st, rows); err != nil {
			return err
		}
	}

	cands := make([]candidate, 0, len(rows))
	for i, row := range rows {
		rowNum := spreadsheetRow(offset + i)
		rec, reason, err := p.presenceRow(ctx, st, row)
		if err != nil {
			return err
		}
		if reason != "" {
			st.acct.rowError(rowNum, reason)
			continue
		}
		cands = append(cands, candidate{row: rowNum, rec: rec})
	}

	staged, err := p.dedup(ctx, st, cands)
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}
	n, err := p.store.InsertPresenceBatch(ctx, staged)
	if err != nil {
		return fmt.Errorf("failed to store presence batch: %w", err)
	}
	st.acct.imported += n
	return nil
}

// presenceRow normalizes one row. A non-empty reason is a row error; err is
// fatal.
func (p *Pipeline) presenceRow(ctx context.Context, st *jobState, row []string) (rec models.PresenceRecord, reason string, err error) {
	c := st.cols
	plate := normalizePlate(Cell(row, c.plate))
	if plate == "" {
		return rec, "empty plate", nil
	}
	at, perr := c.timestamp(row)
	if perr != nil {
		return rec, perr.Error(), nil
	}
	lat, lon := ResolveCoordinates(Cell(row, c.lat), Cell(row, c.lon), Cell(row, c.loc))

	rec = models.PresenceRecord{
		CaseID:     st.job.CaseID,
		FileID:     st.file.ID,
		Plate:      plate,
		ObservedAt: at,
		Latitude:   lat,
		Longitude:  lon,
		Lane:       optionalString(Cell(row, c.lane)),
		Speed:      optionalFloat(Cell(row, c.speed)),
		SourceKind: st.job.Kind,
	}

	if st.job.Kind != models.SourceLPR {
		return rec, "", nil
	}

	readerID := strings.TrimSpace(Cell(row, c.reader))
	if readerID == "" {
		return rec, "missing reader_id", nil
	}
	reader, reason, err := p.resolveReader(ctx, st, readerID, lat, lon)
	if err != nil || reason != "" {
		return rec, reason, err
	}
	rec.ReaderID = &reader.ID
	if rec.Latitude == nil && reader.HasCoordinates() {
		rec.Latitude, rec.Longitude = reader.Latitude, reader.Longitude
	}
	return rec, "", nil
}

func (p *Pipeline) prefetchReaders(ctx context.Context, st *jobState, rows [][]string) error {
	var ids []string
	pending := make(map[string]struct{})
	for _, row := range rows {
		id := strings.TrimSpace(Cell(row, st.cols.reader))
		if id == "" {
			continue
		}
		if _, ok := st.readers[id]; ok {
			continue
		}
		if _, ok := st.absent[id]; ok {
			continue
		}
		if _, ok := pending[id]; ok {
			continue
		}
		pending[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	found, err := p.store.GetReaders(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to look up readers: %w", err)
	}
	for _, id := range ids {
		if r, ok := found[id]; ok {
			st.readers[id] = r
		} else {
			st.absent[id] = struct{}{}
		}
	}
	return nil
}

// resolveReader returns the stored reader for id, creating it when the id
// passes CheckReaderID. The row's coordinates seed a new reader.
func (p *Pipeline) resolveReader(ctx context.Context, st *jobState, id string, lat, lon *float64) (*models.Reader, string, error) {
	if r, ok := st.readers[id]; ok {
		return r, "", nil
	}
	if v, ok := st.rejected[id]; ok {
		return nil, rejectionReason(v), nil
	}

	v := CheckReaderID(id)
	if !v.Safe {
		st.rejected[id] = v
		st.acct.rejected = append(st.acct.rejected, id)
		logging.Ctx(ctx).Warn().Str("reader_id", id).Str("reason", v.Reason).Msg("Reader auto-creation refused")
		return nil, rejectionReason(v), nil
	}

	r := &models.Reader{ID: id, Latitude: lat, Longitude: lon}
	created, err := p.store.CreateReader(ctx, r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create reader %q: %w", id, err)
	}
	if !created {
		// Another job created it first.
		found, err := p.store.GetReaders(ctx, []string{id})
		if err != nil {
			return nil, "", fmt.Errorf("failed to look up reader %q: %w", id, err)
		}
		if existing, ok := found[id]; ok {
			r = existing
		}
	} else {
		st.acct.newReaders = append(st.acct.newReaders, id)
		logging.Ctx(ctx).Info().Str("reader_id", id).Msg("Reader created")
	}
	delete(st.absent, id)
	st.readers[id] = r
	return r, "", nil
}

func rejectionReason(v Verdict) string {
	return fmt.Sprintf("reader rejected: %s; %s", v.Reason, v.Suggestion)
}

// dedup drops candidates already stored or already staged by this job and
// returns the rest in row order.
func (p *Pipeline) dedup(ctx context.Context, st *jobState, cands []candidate) ([]models.PresenceRecord, error) {
	lookup := make([]models.DedupKey, 0, len(cands))
	for i := range cands {
		k := cands[i].rec.Key()
		if _, ok := st.seen[k]; !ok {
			lookup = append(lookup, k)
		}
	}
	existing, err := p.store.ExistingPresenceKeys(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicates: %w", err)
	}

	staged := make([]models.PresenceRecord, 0, len(cands))
	for i := range cands {
		c := &cands[i]
		k := c.rec.Key()
		_, inJob := st.seen[k]
		_, inStore := existing[k]
		if inJob || inStore {
			st.acct.duplicate(describeDuplicate(c))
			continue
		}
		st.seen[k] = struct{}{}
		staged = append(staged, c.rec)
	}
	return staged, nil
}

func describeDuplicate(c *candidate) string {
	reader := "-"
	if c.rec.ReaderID != nil {
		reader = *c.rec.ReaderID
	}
	return fmt.Sprintf("row %d: %s, %s, reader %s", c.row, c.rec.Plate, c.rec.ObservedAt.Format(time.DateTime), reader)
}

func (p *Pipeline) externalBatch(ctx context.Context, st *jobState, rows [][]string, offset int) error {
	c := st.cols
	recs := make([]models.ExternalRecord, 0, len(rows))
	for i, row := range rows {
		rowNum := spreadsheetRow(offset + i)
		plate := normalizePlate(Cell(row, c.plate))
		if plate == "" {
			st.acct.rowError(rowNum, "empty plate")
			continue
		}
		at, err := c.timestamp(row)
		if err != nil {
			st.acct.rowError(rowNum, err.Error())
			continue
		}
		attrs := make(map[string]*string, len(c.attrs))
		for _, a := range c.attrs {
			attrs[a.name] = optionalString(Cell(row, a.index))
		}
		recs = append(recs, models.ExternalRecord{
			CaseID:     st.job.CaseID,
			FileID:     st.file.ID,
			Plate:      plate,
			SourceName: st.job.SourceName,
			ObservedAt: &at,
			Attributes: attrs,
		})
	}
	if len(recs) == 0 {
		return nil
	}
	n, err := p.store.InsertExternalBatch(ctx, recs)
	if err != nil {
		return fmt.Errorf("failed to store external batch: %w", err)
	}
	st.acct.imported += n
	return nil
}

func normalizePlate(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalFloat(s string) *float64 {
	f, ok := parseDecimal(strings.TrimSpace(s))
	if !ok {
		return nil
	}
	return &f
}
