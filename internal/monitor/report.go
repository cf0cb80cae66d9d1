package monitor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/web3-frozen/ultrasound-monitor/internal/metrics"
)

const (
	reportClaimTTL = 2 * time.Hour
	// A chat that moves its report hour within a day is not reported twice.
	deliveredTTL = 25 * time.Hour
	// The change line needs a stored reading this close to 24h before the round.
	changeTolerance = time.Hour
)

// SendReports delivers the daily supply report to subscribers of the hour of
// at. Each (day, hour) round is claimed once across replicas. It returns the
// number of chats reached.
func (e *Engine) SendReports(ctx context.Context, at time.Time) int {
	at = at.UTC()
	if e.store == nil || e.alertFn == nil {
		return 0
	}
	proj, ok := e.Projection()
	snap := e.Latest()
	if !ok || snap == nil {
		e.logger.Warn("skipping report round, no supply yet", "hour", at.Hour())
		return 0
	}

	hour := at.Hour()
	key := fmt.Sprintf("report:%s:%s:%02d", reportEvent, at.Format("2006-01-02"), hour)
	if e.claimer != nil {
		won, err := e.claimer.Acquire(ctx, key, reportClaimTTL)
		if err != nil {
			e.logger.Error("claim report round failed", "key", key, "error", err)
			return 0
		}
		if !won {
			metrics.ReportsDeduplicatedTotal.WithLabelValues(reportEvent).Inc()
			return 0
		}
	}

	chatIDs, err := e.store.GetDailyReportSubscribers(ctx, reportEvent, hour)
	if err != nil {
		e.logger.Error("get subscribers failed", "event", reportEvent, "error", err)
		e.release(ctx, key)
		return 0
	}
	if len(chatIDs) == 0 {
		return 0
	}

	change := e.dayChange(ctx, at, proj.EthSupply)
	msg := formatReport(at, proj.EthSupply, change, snap, e.source.URL())

	sent := e.broadcast(ctx, at, chatIDs, msg)
	if sent == 0 {
		e.release(ctx, key)
	}
	return sent
}

// dayChange returns the supply change against the stored reading nearest
// 24h before at, or nil when history has no reading close enough.
func (e *Engine) dayChange(ctx context.Context, at time.Time, current float64) *float64 {
	prev, err := e.store.NearestSupplySnapshot(ctx, at.Add(-24*time.Hour), changeTolerance)
	if err != nil {
		e.logger.Warn("load 24h baseline failed", "error", err)
		return nil
	}
	if prev == nil {
		return nil
	}
	d := current - prev.EthSupply
	return &d
}

func (e *Engine) release(ctx context.Context, key string) {
	if e.claimer != nil {
		e.claimer.Clear(ctx, key)
	}
}

func (e *Engine) broadcast(ctx context.Context, at time.Time, chatIDs []int64, msg string) int {
	day := at.UTC().Format("2006-01-02")
	sent := 0
	for _, chatID := range chatIDs {
		key := fmt.Sprintf("report:delivered:%d:%s", chatID, day)
		if e.claimer != nil && e.claimer.AlreadySent(ctx, key) {
			metrics.ReportsDeduplicatedTotal.WithLabelValues(reportEvent).Inc()
			continue
		}
		if err := e.alertFn(chatID, msg); err != nil {
			metrics.ReportsFailedTotal.WithLabelValues(reportEvent).Inc()
			e.logger.Error("send report failed", "chat_id", chatID, "error", err)
			continue
		}
		if e.claimer != nil {
			e.claimer.Record(ctx, key, deliveredTTL)
		}
		metrics.ReportsSentTotal.WithLabelValues(reportEvent).Inc()
		sent++
	}
	return sent
}

func formatReport(at time.Time, ethSupply float64, change *float64, snap *Snapshot, url string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🦇🔊 ETH SUPPLY REPORT — %s\n\n", at.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Supply: %s ETH\n", formatEth(ethSupply))
	if change != nil {
		fmt.Fprintf(&b, "24h change: %s ETH\n", formatSigned(*change))
	}
	fmt.Fprintf(&b, "Block: %s\n", addCommas(strconv.FormatUint(snap.Supply.ExecutionBalancesSum.BlockNumber, 10)))
	fmt.Fprintf(&b, "Slot: %s\n\n", addCommas(strconv.FormatUint(snap.Supply.BeaconBalancesSum.Slot, 10)))
	b.WriteString("🔗 " + url)
	return b.String()
}

// FormatEth renders an ETH amount with two decimals and thousands separators.
func FormatEth(v float64) string { return formatEth(v) }

func formatEth(v float64) string {
	s := addCommas(fmt.Sprintf("%.2f", math.Abs(v)))
	if v < 0 && s != "0.00" {
		return "-" + s
	}
	return s
}

func formatSigned(v float64) string {
	s := formatEth(v)
	if !strings.HasPrefix(s, "-") {
		return "+" + s
	}
	return s
}

func addCommas(s string) string {
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	n := len(intPart)
	if n <= 3 {
		if len(parts) == 2 {
			return intPart + "." + parts[1]
		}
		return intPart
	}
	var result []byte
	for i, c := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	if len(parts) == 2 {
		return string(result) + "." + parts[1]
	}
	return string(result)
}
