// Пакет ledger — журнал файловых записей SRM-запроса.
//
// Entry — состояние одного SURL внутри запроса. Жизненный цикл:
//
//	QUEUED → INPROGRESS → READY (PINNED / SPACE_AVAILABLE) → DONE
//	   \          \            \
//	    +----------+------------+→ FAILED / ABORTED / EXPIRED
//
// Финальные состояния необратимы: любые изменения после них
// молча игнорируются (метод возвращает false). Entry не потокобезопасна —
// доступ сериализуется блокировкой владеющего запроса.
package ledger

import (
	"time"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
	"github.com/bigkaa/srm-manager/internal/lifetime"
)

// Entry — файловая запись запроса.
type Entry struct {
	surl         string
	targetSURL   string
	expectedSize uint64

	code        status.Code
	explanation string

	fileSize    *uint64
	transferURL string
	detail      *model.PathDetail

	spaceToken string
	charged    uint64

	pinDeadline  time.Time
	fileDeadline time.Time

	updatedAt time.Time
}

// New создаёт запись в состоянии SRM_REQUEST_QUEUED.
func New(spec model.FileSpec, now time.Time) *Entry {
	return &Entry{
		surl:         spec.SURL,
		targetSURL:   spec.TargetSURL,
		expectedSize: spec.ExpectedSize,
		code:         status.RequestQueued,
		updatedAt:    now,
	}
}

// SURL возвращает SURL записи.
func (e *Entry) SURL() string { return e.surl }

// TargetSURL возвращает целевой SURL (copy).
func (e *Entry) TargetSURL() string { return e.targetSURL }

// ExpectedSize возвращает ожидаемый размер (put).
func (e *Entry) ExpectedSize() uint64 { return e.expectedSize }

// Code возвращает текущий код состояния.
func (e *Entry) Code() status.Code { return e.code }

// Status возвращает текущий ReturnStatus.
func (e *Entry) Status() status.ReturnStatus {
	return status.New(e.code, e.explanation)
}

// IsFinal — запись в финальном состоянии.
func (e *Entry) IsFinal() bool { return status.IsFinal(e.code) }

// TransferURL возвращает TURL, выданный движком.
func (e *Entry) TransferURL() string { return e.transferURL }

// SpaceToken возвращает токен резервирования, на которое списан файл.
func (e *Entry) SpaceToken() string { return e.spaceToken }

// Charged возвращает объём, списанный с резервирования.
func (e *Entry) Charged() uint64 { return e.charged }

// PinDeadline возвращает момент истечения закрепления.
func (e *Entry) PinDeadline() time.Time { return e.pinDeadline }

// FileDeadline возвращает момент истечения времени жизни файла.
func (e *Entry) FileDeadline() time.Time { return e.fileDeadline }

// UpdatedAt возвращает время последнего изменения.
func (e *Entry) UpdatedAt() time.Time { return e.updatedAt }

// SetCharge фиксирует списание с резервирования.
// Вызывается при создании запроса, до передачи в движок.
func (e *Entry) SetCharge(spaceToken string, amount uint64) {
	e.spaceToken = spaceToken
	e.charged = amount
}

// ClearCharge сбрасывает объём списания (после возврата в резервирование).
func (e *Entry) ClearCharge() uint64 {
	amount := e.charged
	e.charged = 0
	return amount
}

// MarkInProgress переводит запись из очереди в обработку.
func (e *Entry) MarkInProgress(now time.Time) bool {
	if e.code != status.RequestQueued {
		return false
	}
	e.set(status.RequestInProgress, "", now)
	return true
}

// MarkReady фиксирует готовность файла: TURL выдан, файл закреплён
// или место под запись выделено. Допустимо только из QUEUED/INPROGRESS.
func (e *Entry) MarkReady(now time.Time, code status.Code, turl string, size *uint64, pinDeadline, fileDeadline time.Time) bool {
	if !status.IsProcessing(e.code) {
		return false
	}
	e.transferURL = turl
	if size != nil {
		s := *size
		e.fileSize = &s
	}
	e.pinDeadline = pinDeadline
	// Срок, продлённый клиентом до готовности, не сокращается.
	if fileDeadline.After(e.fileDeadline) {
		e.fileDeadline = fileDeadline
	}
	e.set(code, "", now)
	return true
}

// MarkDone переводит запись в успешное финальное состояние
// (SRM_SUCCESS, SRM_DONE, SRM_RELEASED).
func (e *Entry) MarkDone(now time.Time, code status.Code) bool {
	if e.IsFinal() {
		return false
	}
	e.set(code, "", now)
	return true
}

// MarkListed завершает запись srmLs с метаданными пути.
func (e *Entry) MarkListed(now time.Time, detail model.PathDetail) bool {
	if e.IsFinal() {
		return false
	}
	d := detail
	e.detail = &d
	size := detail.Size
	e.fileSize = &size
	e.set(status.Success, "", now)
	return true
}

// MarkFailed переводит запись в неуспешное финальное состояние.
func (e *Entry) MarkFailed(now time.Time, code status.Code, explanation string) bool {
	if e.IsFinal() {
		return false
	}
	e.set(code, explanation, now)
	return true
}

// Abort прерывает запись. Для финальной записи — no-op.
func (e *Entry) Abort(now time.Time, explanation string) bool {
	return e.MarkFailed(now, status.Aborted, explanation)
}

// Requeue возвращает запись из обработки в очередь (приостановка запроса).
func (e *Entry) Requeue(now time.Time) bool {
	if e.code != status.RequestInProgress {
		return false
	}
	e.set(status.RequestQueued, "", now)
	return true
}

// ExtendLifetime продлевает закрепление и/или время жизни файла.
// Нулевая длительность — не менять. Срок никогда не сокращается:
// если новый deadline раньше текущего, текущий сохраняется.
// Для финальной записи возвращает SRM_INVALID_REQUEST.
func (e *Entry) ExtendLifetime(now time.Time, pin, file time.Duration) error {
	if e.IsFinal() {
		return status.Errorf(status.InvalidRequest, "файл %s уже в финальном состоянии %s", e.surl, e.code)
	}
	if pin > 0 && !e.pinDeadline.IsZero() {
		if d := now.Add(pin); d.After(e.pinDeadline) {
			e.pinDeadline = d
		}
	}
	if file > 0 {
		if d := now.Add(file); d.After(e.fileDeadline) {
			e.fileDeadline = d
		}
	}
	return nil
}

// LifetimeExpired — у готовой записи истёк срок закрепления или жизни файла.
func (e *Entry) LifetimeExpired(now time.Time) bool {
	if !status.IsReady(e.code) {
		return false
	}
	return lifetime.Expired(e.pinDeadline, now) || lifetime.Expired(e.fileDeadline, now)
}

// Snapshot возвращает копию состояния записи с вычисленными оставшимися сроками.
// estimatedWait выдаётся только записям в обработке.
func (e *Entry) Snapshot(now time.Time, estimatedWait time.Duration) model.FileStatus {
	fs := model.FileStatus{
		SURL:        e.surl,
		TargetSURL:  e.targetSURL,
		Status:      e.Status(),
		TransferURL: e.transferURL,
		SpaceToken:  e.spaceToken,
	}
	if e.fileSize != nil {
		s := *e.fileSize
		fs.FileSize = &s
	} else if e.expectedSize > 0 {
		s := e.expectedSize
		fs.FileSize = &s
	}
	if e.detail != nil {
		d := *e.detail
		fs.Detail = &d
	}
	if status.IsReady(e.code) {
		fs.RemainingPinLifetime = lifetime.RemainingPtr(e.pinDeadline, now)
		fs.RemainingFileLifetime = lifetime.RemainingPtr(e.fileDeadline, now)
	}
	if status.IsProcessing(e.code) && estimatedWait > 0 {
		w := int64(estimatedWait / time.Second)
		fs.EstimatedWaitTime = &w
	}
	return fs
}

func (e *Entry) set(code status.Code, explanation string, now time.Time) {
	e.code = code
	e.explanation = explanation
	e.updatedAt = now
}
