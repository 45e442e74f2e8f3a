package status

// Flags — состояние запроса, влияющее на агрегацию помимо статусов файлов.
type Flags struct {
	// Suspended — запрос приостановлен (srmSuspendRequest).
	Suspended bool
	// Override — итоговый код, выставленный явно (SRM_ABORTED при abort,
	// SRM_REQUEST_TIMED_OUT при истечении времени запроса). Пустой — не задан.
	Override Code
}

// Aggregate вычисляет общий статус запроса по статусам его файлов.
//
// Пока хотя бы один файл в обработке:
//   - SRM_ABORTED, если запрос прерван;
//   - SRM_REQUEST_SUSPENDED, если приостановлен;
//   - SRM_REQUEST_QUEUED, если все файлы ещё в очереди;
//   - иначе SRM_REQUEST_INPROGRESS.
//
// Когда обработка завершена по всем файлам:
//   - явно выставленный итоговый код (abort, timeout);
//   - SRM_SUCCESS, если все файлы успешны;
//   - SRM_FAILURE, если все файлы неуспешны;
//   - иначе SRM_PARTIAL_SUCCESS.
func Aggregate(entries []Code, flags Flags) Code {
	processing := 0
	queued := 0
	succeeded := 0
	for _, c := range entries {
		switch {
		case IsProcessing(c):
			processing++
			if c == RequestQueued {
				queued++
			}
		case c == RequestSuspended:
			// Файл приостановлен вместе с запросом — считается «в обработке».
			processing++
		case IsSuccess(c):
			succeeded++
		}
	}

	if processing > 0 {
		switch {
		case flags.Override == Aborted:
			return Aborted
		case flags.Suspended:
			return RequestSuspended
		case queued == len(entries):
			return RequestQueued
		default:
			return RequestInProgress
		}
	}

	if flags.Override != "" {
		return flags.Override
	}

	switch succeeded {
	case len(entries):
		return Success
	case 0:
		return Failure
	default:
		return PartialSuccess
	}
}
