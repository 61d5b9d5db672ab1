package stability

import (
	"context"
	"strconv"
	"strings"

	"github.com/use-agent/browser-stream/internal/cdp"
)

// installLayoutShiftObserverJS installs a window-scoped PerformanceObserver
// accumulating layout-shift entries whose hadRecentInput is false, ready
// for CollectLayoutShift to read back after the action settles. It is
// idempotent: re-installing replaces any prior observer.
const installLayoutShiftObserverJS = `(() => {
	if (window.__browserStreamShiftObserver) {
		window.__browserStreamShiftObserver.disconnect();
	}
	window.__browserStreamCLS = 0;
	window.__browserStreamShiftCount = 0;
	try {
		var obs = new PerformanceObserver(function(list) {
			list.getEntries().forEach(function(entry) {
				if (!entry.hadRecentInput) {
					window.__browserStreamCLS += entry.value;
					window.__browserStreamShiftCount += 1;
				}
			});
		});
		obs.observe({ type: 'layout-shift', buffered: true });
		window.__browserStreamShiftObserver = obs;
	} catch (e) {
		// layout-shift unsupported in this engine; CLS stays zero.
	}
	return 'installed';
})()`

// collectLayoutShiftJS reads and disconnects the observer, returning
// "<cls>,<shiftCount>" as a comma-joined pair (Runtime.evaluate's
// returnByValue path only round-trips a single string cleanly).
const collectLayoutShiftJS = `(() => {
	var cls = window.__browserStreamCLS || 0;
	var count = window.__browserStreamShiftCount || 0;
	if (window.__browserStreamShiftObserver) {
		window.__browserStreamShiftObserver.disconnect();
		window.__browserStreamShiftObserver = null;
	}
	return cls + ',' + count;
})()`

// InstallLayoutShiftObserver arms the in-page accumulator before a scroll
// primitive runs.
func InstallLayoutShiftObserver(ctx context.Context, ch cdp.Channel) {
	var res cdp.RuntimeEvaluateResult
	_ = ch.Send(ctx, "Runtime.evaluate", cdp.RuntimeEvaluateParams{Expression: installLayoutShiftObserverJS, ReturnByValue: true}, &res)
}

// CollectLayoutShift reads back the accumulated CLS and shift count,
// disconnecting the observer. Parse failures yield zero values rather
// than propagating an error: a missing layout-shift signal should never
// fail the action it is merely annotating.
func CollectLayoutShift(ctx context.Context, ch cdp.Channel) (cls float64, shiftCount int) {
	var res cdp.RuntimeEvaluateResult
	if err := ch.Send(ctx, "Runtime.evaluate", cdp.RuntimeEvaluateParams{Expression: collectLayoutShiftJS, ReturnByValue: true}, &res); err != nil {
		return 0, 0
	}

	parts := strings.SplitN(res.Value, ",", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	cls, _ = strconv.ParseFloat(parts[0], 64)
	count, _ := strconv.Atoi(parts[1])
	return cls, count
}
