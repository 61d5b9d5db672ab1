package orchestrator

import "encoding/json"

// These are data to the core, not code to translate (design note,
// mirrored from the snapshot builder's js.go): sent as Runtime.evaluate
// or Runtime.callFunctionOn string payloads and never interpreted
// server-side. Values the Go side already knows (a fill value, a scroll
// amount) are embedded as JSON literals rather than passed as CDP call
// arguments, since this core's wire layer only carries objectId and the
// function body.

func jsLit(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

const isContentEditableJS = `function() { return this.isContentEditable ? "true" : "false"; }`

// fillEditableJS sets innerText on a contentEditable element and fires a
// bubbling input event.
func fillEditableJS(value string) string {
	return `function() {
		this.focus();
		this.innerText = ` + jsLit(value) + `;
		this.dispatchEvent(new Event('input', { bubbles: true }));
		return "ok";
	}`
}

// fillNativeJS invokes the native value setter from the prototype chain so
// framework-bound inputs (React et al.) observe the change, falling back
// to direct assignment, then fires input and change. It
// returns the element's resulting value so the caller can detect a
// failed write.
func fillNativeJS(value string) string {
	return `function() {
		this.focus();
		var value = ` + jsLit(value) + `;
		var proto = this.tagName === 'TEXTAREA' ? window.HTMLTextAreaElement.prototype : window.HTMLInputElement.prototype;
		var setter = Object.getOwnPropertyDescriptor(proto, 'value');
		if (setter && setter.set) {
			setter.set.call(this, value);
		} else {
			this.value = value;
		}
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
		return this.value;
	}`
}

const scrollIntoViewIfNeededJS = `function() { this.scrollIntoViewIfNeeded ? this.scrollIntoViewIfNeeded() : this.scrollIntoView(); return "ok"; }`

// scrollRefJS walks up from the bound element ("this") looking for a
// scrollable ancestor, falling back to the document if none exists, then
// applies delta. It returns a JSON-encoded
// scrollPrimitiveResult.
func scrollRefJS(direction, amountKind string, amountN float64) string {
	return `function() {
		` + scrollCoreJS(direction, amountKind, amountN, true) + `
	}`
}

// scrollViewportJS applies the same primitive directly against the
// document when no ref was given.
func scrollViewportJS(direction, amountKind string, amountN float64) string {
	return `(() => {
		` + scrollCoreJS(direction, amountKind, amountN, false) + `
	})()`
}

// scrollCoreJS is shared between the ref-bound and viewport variants; only
// target selection differs (walk from `this` vs. go straight to the
// document).
func scrollCoreJS(direction, amountKind string, amountN float64, hasRef bool) string {
	findTarget := `
		var target = document.scrollingElement || document.documentElement || document.body;
		var fallback = true;`
	if hasRef {
		findTarget = `
		var el = this;
		var target = null;
		var cur = el.parentElement;
		while (cur) {
			var style = window.getComputedStyle(cur);
			if ((style.overflowY === 'auto' || style.overflowY === 'scroll') && cur.scrollHeight > cur.clientHeight) {
				target = cur;
				break;
			}
			cur = cur.parentElement;
		}
		var fallback = false;
		if (!target) {
			target = document.scrollingElement || document.documentElement || document.body;
			fallback = true;
		}`
	}

	return findTarget + `
		var scrollTopBefore = target.scrollTop;
		var clientHeight = target.clientHeight;
		var scrollHeight = target.scrollHeight;
		var direction = ` + jsLit(direction) + `;
		var amountKind = ` + jsLit(amountKind) + `;
		var amountN = ` + jsLit(amountN) + `;
		if (amountKind === 'to-top') {
			target.scrollTop = 0;
		} else if (amountKind === 'to-bottom') {
			target.scrollTop = Math.max(0, scrollHeight - clientHeight);
		} else {
			var delta = amountKind === 'page' ? clientHeight : amountN;
			if (direction === 'up') { delta = -delta; }
			target.scrollTop = scrollTopBefore + delta;
		}
		var result = {
			scrollTopBefore: scrollTopBefore,
			scrollTopAfter: target.scrollTop,
			scrollHeight: target.scrollHeight,
			clientHeight: target.clientHeight,
			containerTag: target.tagName || 'document',
			fallback: fallback
		};
		return JSON.stringify(result);`
}
