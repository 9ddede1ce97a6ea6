package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/oqpsk-sink/pkg/database"
	"github.com/dbehnke/oqpsk-sink/pkg/logger"
	"github.com/dbehnke/oqpsk-sink/pkg/metrics"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
)

const (
	defaultFrameLimit = 50
	maxFrameLimit     = 500
)

// StatusSource reports pipeline state
type StatusSource interface {
	Session() string
	Uptime() time.Duration
	Stats() pipeline.Stats
}

// StatsSource reports sink counters
type StatsSource interface {
	Snapshot() metrics.Snapshot
}

// API handles REST API endpoints. Any dependency may be nil; the matching
// endpoints then report an empty result or 503.
type API struct {
	logger *logger.Logger
	status StatusSource
	stats  StatsSource
	frames *database.FrameRepository
	nodes  *database.NodeRepository
}

// NewAPI creates a new API instance
func NewAPI(log *logger.Logger, status StatusSource, stats StatsSource, db *database.DB) *API {
	if log == nil {
		log = logger.Nop()
	}
	a := &API{
		logger: log.WithComponent("web.api"),
		status: status,
		stats:  stats,
	}
	if db != nil {
		a.frames = database.NewFrameRepository(db.GetDB())
		a.nodes = database.NewNodeRepository(db.GetDB())
	}
	return a
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

func getOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// HandleStatus handles the /api/status endpoint
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}

	build := CurrentBuildInfo()
	response := map[string]interface{}{
		"status":     "running",
		"service":    "oqpsk-sink",
		"version":    build.Version,
		"commit":     build.Commit,
		"build_time": build.BuildTime,
	}
	if a.status != nil {
		response["session"] = a.status.Session()
		response["uptime_seconds"] = int64(a.status.Uptime().Seconds())
		response["pipeline"] = a.status.Stats()
	}
	a.writeJSON(w, http.StatusOK, response)
}

// HandleStats handles the /api/stats endpoint
func (a *API) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	if a.stats == nil {
		a.writeError(w, http.StatusServiceUnavailable, "metrics unavailable")
		return
	}
	a.writeJSON(w, http.StatusOK, a.stats.Snapshot())
}

// HandleFrames handles the /api/frames endpoint. Query parameters: limit,
// page and source (a MAC source address such as 1aaa/0001).
func (a *API) HandleFrames(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	if a.frames == nil {
		a.writeJSON(w, http.StatusOK, []database.ReceivedFrame{})
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	var frames []database.ReceivedFrame
	switch {
	case q.Get("source") != "":
		frames, err = a.frames.GetBySource(q.Get("source"), limit)
	case q.Get("page") != "":
		page, perr := strconv.Atoi(q.Get("page"))
		if perr != nil || page < 1 {
			a.writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		var total int64
		frames, total, err = a.frames.GetRecentPaginated(page, limit)
		if err == nil {
			w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
		}
	default:
		frames, err = a.frames.GetRecent(limit)
	}
	if err != nil {
		a.logger.Error("Failed to query frames", logger.Error(err))
		a.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if frames == nil {
		frames = []database.ReceivedFrame{}
	}
	a.writeJSON(w, http.StatusOK, frames)
}

// HandleNodes handles the /api/nodes endpoint
func (a *API) HandleNodes(w http.ResponseWriter, r *http.Request) {
	if !getOnly(w, r) {
		return
	}
	if a.nodes == nil {
		a.writeJSON(w, http.StatusOK, []database.Node{})
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	nodes, err := a.nodes.List(limit)
	if err != nil {
		a.logger.Error("Failed to query nodes", logger.Error(err))
		a.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if nodes == nil {
		nodes = []database.Node{}
	}
	a.writeJSON(w, http.StatusOK, nodes)
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultFrameLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, strconv.ErrSyntax
	}
	if n > maxFrameLimit {
		n = maxFrameLimit
	}
	return n, nil
}
