package pathtrace

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/heyvito/pathtrace/internal/containers"
	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/resources"
	"go.uber.org/zap"
)

var statePage = template.Must(template.New("state").Parse(resources.StatePage))

type statePageNode struct {
	ID          string
	Role        string
	Distance    int32
	Phase       string
	Predecessor string
	Marker      string
}

type statePageData struct {
	Mode      string
	Sent      int
	Delivered int
	Dropped   int
	Nodes     []statePageNode
	Paths     []string
}

// inspectTimeout bounds how long a state request waits on busy RunLoops.
const inspectTimeout = 5 * time.Second

// Handler serves the network's state: an HTML page at "/", a plain text dump
// at "/state", and the fabric's prometheus metrics at "/metrics".
func (n *Network) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", n.fabric.Handler())
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		res, ok := n.resultForRequest(w, r)
		if !ok {
			return
		}
		str := strings.Builder{}
		dumpNetworkState(&str, n.opts.Mode, res)
		w.Header().Add("Content-Type", "text/plain")
		_, _ = w.Write([]byte(str.String()))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		res, ok := n.resultForRequest(w, r)
		if !ok {
			return
		}
		w.Header().Add("Content-Type", "text/html; charset=utf-8")
		if err := statePage.Execute(w, pageData(n.opts.Mode, res)); err != nil {
			n.log.Error("Failed rendering state page", zap.Error(err))
		}
	})
	return mux
}

func (n *Network) resultForRequest(w http.ResponseWriter, r *http.Request) (*Result, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), inspectTimeout)
	defer cancel()
	res, err := n.Result(ctx)
	if err != nil {
		n.log.Error("Failed serving state request", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return nil, false
	}
	return res, true
}

func pageData(mode Mode, res *Result) statePageData {
	data := statePageData{
		Mode:      mode.String(),
		Sent:      res.Stats.TotalSent(),
		Delivered: res.Stats.TotalDelivered(),
		Dropped:   res.Stats.TotalDropped(),
	}
	for _, s := range res.Nodes {
		pred := "-"
		if s.HasPredecessor {
			pred = s.Predecessor.String()
		}
		data.Nodes = append(data.Nodes, statePageNode{
			ID:          s.ID.String(),
			Role:        s.Role.String(),
			Distance:    s.Distance,
			Phase:       s.Phase.String(),
			Predecessor: pred,
			Marker:      res.Markers[s.ID].String(),
		})
	}
	for _, p := range res.Paths {
		data.Paths = append(data.Paths, p.String())
	}
	return data
}

func dumpNetworkState(str *strings.Builder, mode Mode, res *Result) {
	str.WriteString("Network\n")
	str.WriteString("==========================\n")
	str.WriteString(fmt.Sprintf("Mode: %s\n", mode))
	str.WriteString(fmt.Sprintf("Sent: %d\n", res.Stats.TotalSent()))
	str.WriteString(fmt.Sprintf("Delivered: %d\n", res.Stats.TotalDelivered()))
	str.WriteString(fmt.Sprintf("Dropped: %d\n", res.Stats.TotalDropped()))
	str.WriteString(fmt.Sprintf("Elapsed: %s\n\n", res.Stats.Elapsed))

	str.WriteString("Nodes\n")
	for _, s := range res.Nodes {
		pred := "-"
		if s.HasPredecessor {
			pred = s.Predecessor.String()
		}
		str.WriteString(fmt.Sprintf("  - %s %s distance=%d phase=%s predecessor=%s marker=%s\n",
			s.ID, s.Role, s.Distance, s.Phase, pred, res.Markers[s.ID]))
	}

	str.WriteString("\nMarkers\n")
	for _, m := range core.AllMarkers {
		str.WriteString(fmt.Sprintf("  - %s: %d\n", m, res.MarkerCounts[m]))
	}
	str.WriteString(fmt.Sprintf("Seen: %s\n", strings.Join(containers.StrMapper(res.MarkersSeen), ", ")))

	str.WriteString("\nPaths\n")
	for _, p := range res.Paths {
		str.WriteString("  - " + p.String() + "\n")
	}
}
