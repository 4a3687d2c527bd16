package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleMetrics writes the generator counters in the Prometheus text format.
func (s *Server) handleMetrics(c *gin.Context) {
	m := s.gen.GetMetrics()
	labels := fmt.Sprintf(`{worker="%d",datacenter="%d"}`, s.gen.WorkerID(), s.gen.DatacenterID())

	var b strings.Builder
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(&b, "%s%s %v\n", name, labels, value)
	}

	metric("idalloc_ids_generated_total", "counter", "Total number of IDs minted", m.Generated)
	metric("idalloc_clock_regressions_total", "counter", "Allocations rejected because the clock moved backwards", m.ClockRegressions)
	metric("idalloc_sequence_exhausted_total", "counter", "Milliseconds whose sequence space ran out", m.SequenceExhausted)
	metric("idalloc_wait_time_microseconds_total", "counter", "Time spent waiting for the next millisecond", m.WaitTimeUs)
	metric("idalloc_generator_info", "gauge", "Generator identity", 1)
	if m.Generated > 0 {
		metric("idalloc_avg_wait_microseconds", "gauge", "Average wait per minted ID in microseconds",
			fmt.Sprintf("%.2f", float64(m.WaitTimeUs)/float64(m.Generated)))
	}

	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status           string `json:"status"`
	WorkerID         int64  `json:"workerId"`
	DatacenterID     int64  `json:"datacenterId"`
	Generated        int64  `json:"generated"`
	ClockRegressions int64  `json:"clockRegressions"`
	Error            string `json:"error,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	m := s.gen.GetMetrics()
	status := HealthStatus{
		Status:           "ok",
		WorkerID:         s.gen.WorkerID(),
		DatacenterID:     s.gen.DatacenterID(),
		Generated:        m.Generated,
		ClockRegressions: m.ClockRegressions,
	}

	if s.healthCheck != nil {
		if err := s.healthCheck(c.Request.Context()); err != nil {
			status.Status = "not_serving"
			status.Error = err.Error()
			respond(c, http.StatusServiceUnavailable, "unhealthy", status)
			return
		}
	}
	OK(c, "ok", status)
}
