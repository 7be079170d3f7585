package donate

const (
	operationCredit = "credit"
	operationTopN   = "top_n"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	maxNickLength = 24

	minPledgeDollars = 1
	maxPledgeDollars = 100000

	totalPlaces = 2
)

// DefaultLeaderboardLimit caps leaderboard responses unless configured otherwise.
const DefaultLeaderboardLimit = 30
