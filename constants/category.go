package constants

// HistoryCategory is the "type" column of a history row.
type HistoryCategory string

const (
	HistoryCategoryFinance HistoryCategory = "Finance"
)

// HistoryActor is the "created_by" column of a history row.
const HistoryActor = "Operations"

// HistoryMessageFormat is rendered with the change date as DD-MM-YYYY.
const HistoryMessageFormat = "Rekeningnummer is op %s door %s aangepast"

// HistoryDateLayout is the Go layout for DD-MM-YYYY.
const HistoryDateLayout = "02-01-2006"
