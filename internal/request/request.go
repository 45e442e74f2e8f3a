package request

import (
	"sync"
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/ledger"
	"github.com/bigkaa/srm-manager/internal/lifetime"
)

// request — асинхронный SRM-запрос в памяти.
// Все поля, кроме неизменяемых после создания, защищены mu.
type request struct {
	mu sync.Mutex

	token       string
	typ         model.RequestType
	owner       string
	description string
	options     model.Options
	submittedAt time.Time
	deadline    time.Time

	entries []*ledger.Entry
	// bySURL — SURL → индексы записей (один SURL может встречаться несколько раз).
	bySURL map[string][]int

	suspended bool
	override  status.Code

	// fixed — итоговый статус запросов без файлов (reserve/update space).
	fixed *status.ReturnStatus
	// spaceToken — резервирование, созданное или изменённое запросом.
	spaceToken string
	space      *model.SpaceSnapshot

	lastCode   status.Code
	finishedAt time.Time
	history    []model.HistoryRecord
}

func newRequest(tok string, p SubmitParams, now, deadline time.Time) *request {
	req := &request{
		token:       tok,
		typ:         p.Type,
		owner:       p.Owner,
		description: p.Options.UserRequestDescription,
		options:     p.Options,
		submittedAt: now,
		deadline:    deadline,
		bySURL:      make(map[string][]int, len(p.Files)),
	}
	for i, spec := range p.Files {
		req.entries = append(req.entries, ledger.New(spec, now))
		req.bySURL[spec.SURL] = append(req.bySURL[spec.SURL], i)
	}
	return req
}

// aggregate — общий статус запроса. Вызывается под mu.
func (req *request) aggregate() status.ReturnStatus {
	if req.fixed != nil {
		return *req.fixed
	}
	codes := make([]status.Code, len(req.entries))
	for i, e := range req.entries {
		codes[i] = e.Code()
	}
	code := status.Aggregate(codes, status.Flags{Suspended: req.suspended, Override: req.override})

	// Единственный файл — пояснение берётся из его статуса.
	if len(req.entries) == 1 && req.entries[0].Code() == code {
		return req.entries[0].Status()
	}
	return status.New(code, "")
}

// active — запрос ещё обрабатывается (в очереди, в работе или приостановлен).
func (req *request) active() bool {
	c := req.aggregate().Code
	return status.IsProcessing(c) || c == status.RequestSuspended
}

// allFinal — все записи в финальном состоянии.
func (req *request) allFinal() bool {
	for _, e := range req.entries {
		if !e.IsFinal() {
			return false
		}
	}
	return true
}

// settledAt — момент последнего изменения завершённого запроса.
// Нулевое время — запрос ещё не завершался.
func (req *request) settledAt() time.Time {
	if req.finishedAt.IsZero() {
		return time.Time{}
	}
	t := req.finishedAt
	for _, e := range req.entries {
		if e.UpdatedAt().After(t) {
			t = e.UpdatedAt()
		}
	}
	return t
}

// find возвращает записи с указанным SURL.
func (req *request) find(surl string) []*ledger.Entry {
	idx := req.bySURL[surl]
	out := make([]*ledger.Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, req.entries[i])
	}
	return out
}

// chargeKey — SURL, под которым файл списан на резервирование.
func (req *request) chargeKey(e *ledger.Entry) string {
	if req.typ == model.RequestCopy && e.TargetSURL() != "" {
		return e.TargetSURL()
	}
	return e.SURL()
}

// observe фиксирует смену общего статуса в истории.
// Возвращает true, если запрос только что завершился.
func (req *request) observe(now time.Time, description string) bool {
	rs := req.aggregate()
	if rs.Code == req.lastCode {
		return false
	}
	req.lastCode = rs.Code
	if description == "" {
		description = rs.Explanation
	}
	req.history = append(req.history, model.HistoryRecord{
		Status:      rs.Code,
		Description: description,
		Timestamp:   now,
	})
	if req.finishedAt.IsZero() && !status.IsProcessing(rs.Code) && rs.Code != status.RequestSuspended {
		req.finishedAt = now
		return true
	}
	return false
}

// snapshot — согласованная копия запроса. Вызывается под mu.
func (req *request) snapshot(now time.Time, estimatedWait time.Duration) model.RequestSnapshot {
	rs := req.aggregate()
	snap := model.RequestSnapshot{
		Token:       req.token,
		Type:        req.typ,
		Owner:       req.owner,
		Description: req.description,
		Status:      rs,
		SubmittedAt: req.submittedAt,
		Deadline:    req.deadline,
		Files:       make([]model.FileStatus, 0, len(req.entries)),
		History:     append([]model.HistoryRecord(nil), req.history...),
	}
	if !req.finishedAt.IsZero() {
		f := req.finishedAt
		snap.FinishedAt = &f
	}
	if status.IsProcessing(rs.Code) || rs.Code == status.RequestSuspended {
		snap.RemainingTotalTime = lifetime.RemainingPtr(req.deadline, now)
	}
	for _, e := range req.entries {
		snap.Files = append(snap.Files, e.Snapshot(now, estimatedWait))
	}
	if req.space != nil {
		s := *req.space
		snap.Space = &s
	}
	return snap
}

// summaryOf — сводка srmGetRequestSummary по снимку запроса.
func summaryOf(snap model.RequestSnapshot) *model.RequestSummary {
	total, waiting, completed, failed := snap.Counts()
	return &model.RequestSummary{
		Token:          snap.Token,
		Type:           snap.Type,
		Status:         snap.Status,
		TotalFiles:     total,
		CompletedFiles: completed,
		WaitingFiles:   waiting,
		FailedFiles:    failed,
	}
}
