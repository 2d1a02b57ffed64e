package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/rbias/ndbpool/internal/pool"
)

// RenderStatsReport produces an operator-facing snapshot of pool.Stats,
// plus an optional circuit-breaker failure summary, as both markdown
// source and rendered HTML. Grounded on the teacher's IncidentArtifacts
// markdown/HTML pairing.
func RenderStatsReport(nodeID int, stats pool.Stats, breaker *CircuitBreaker) (md []byte, htmlOut []byte) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Pool Snapshot — node %d\n\n", nodeID)
	fmt.Fprintf(&buf, "_generated %s_\n\n", time.Now().UTC().Format(time.RFC3339))

	fmt.Fprintf(&buf, "## Connection\n\n")
	fmt.Fprintf(&buf, "- state: **%s**\n", stats.ConnectionState)
	fmt.Fprintf(&buf, "- reconnection in progress: %t\n", stats.IsReconnectionInProgress)
	fmt.Fprintf(&buf, "- shutting down: %t\n", stats.IsShuttingDown)
	fmt.Fprintf(&buf, "- shut down: %t\n\n", stats.IsShutdown)

	fmt.Fprintf(&buf, "## Handles\n\n")
	fmt.Fprintf(&buf, "| metric | value |\n|---|---|\n")
	fmt.Fprintf(&buf, "| available | %d |\n", stats.HandlesAvailable)
	fmt.Fprintf(&buf, "| count | %d |\n", stats.HandlesCount)
	fmt.Fprintf(&buf, "| created | %d |\n", stats.HandlesCreated)
	fmt.Fprintf(&buf, "| deleted | %d |\n\n", stats.HandlesDeleted)

	if breaker != nil {
		bstats := breaker.GetStats()
		fmt.Fprintf(&buf, "## Reconnect circuit breaker\n\n")
		fmt.Fprintf(&buf, "- state: **%s**\n", circuitStateLabel(breaker.GetState()))
		fmt.Fprintf(&buf, "- consecutive failures: %d\n", bstats.Count)
		if len(bstats.RecentReasons) > 0 {
			fmt.Fprintf(&buf, "- recent reasons:\n")
			for _, r := range bstats.RecentReasons {
				fmt.Fprintf(&buf, "  - %s\n", r)
			}
		}
	}

	md = buf.Bytes()

	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	htmlOut = markdown.ToHTML(md, p, renderer)

	return md, htmlOut
}

func circuitStateLabel(s CircuitBreakerState) string {
	if s == StateOpen {
		return "OPEN"
	}
	return "CLOSED"
}
