package snapshot

// These are data to the core, not code to translate (design note): they
// are sent as Runtime.evaluate/callFunctionOn string payloads and never
// interpreted server-side.

// domPathJS computes a CSS selector path rooted at body, called via
// Runtime.callFunctionOn against the element's remote object ("this").
const domPathJS = `function() {
	function computeDomPath(el) {
		var path = [];
		var cur = el;
		while (cur && cur.nodeType === 1 && cur !== document.body) {
			if (cur.id) { path.unshift('#' + cur.id); cur = null; break; }
			var tag = cur.tagName.toLowerCase();
			var siblings = cur.parentNode ? Array.prototype.filter.call(cur.parentNode.children, function(s) { return s.tagName === cur.tagName; }) : [cur];
			var idx = siblings.indexOf(cur) + 1;
			path.unshift(tag + ':nth-of-type(' + idx + ')');
			cur = cur.parentElement;
		}
		if (path.length === 0 || path[0].charAt(0) !== '#') path.unshift('body');
		return path.join(' > ');
	}
	return computeDomPath(this);
}`

// hasInteractiveBodyJS reports whether document.body has any child
// elements at all, gating the DOM fallback: it only runs when the
// accessibility tree yielded zero interactive elements but the body
// still has children worth walking.
const hasInteractiveBodyJS = `(() => !!(document.body && document.body.children && document.body.children.length > 0))()`

// domFallbackSelector is the fixed selector union the DOM fallback path
// queries when the accessibility tree yields no interactive elements.
const domFallbackSelector = `a[href], button, input, select, textarea, [role=button], [role=link], [role=textbox], [role=checkbox], [role=radio], [role=combobox], [role=menuitem], [role=tab], [role=switch], [tabindex]:not([tabindex="-1"])`

// domFallbackJS queries the selector union and synthesizes one record per
// matched element: inferred role, best-effort name, domPath, and current
// value. It returns a JSON string (JSON.stringify) so Runtime.evaluate's
// by-value result round-trips cleanly through cdp.RuntimeEvaluateResult.Value.
const domFallbackJS = `(() => {
	function computeDomPath(el) {
		var path = [];
		var cur = el;
		while (cur && cur.nodeType === 1 && cur !== document.body) {
			if (cur.id) { path.unshift('#' + cur.id); cur = null; break; }
			var tag = cur.tagName.toLowerCase();
			var siblings = cur.parentNode ? Array.prototype.filter.call(cur.parentNode.children, function(s) { return s.tagName === cur.tagName; }) : [cur];
			var idx = siblings.indexOf(cur) + 1;
			path.unshift(tag + ':nth-of-type(' + idx + ')');
			cur = cur.parentElement;
		}
		if (path.length === 0 || path[0].charAt(0) !== '#') path.unshift('body');
		return path.join(' > ');
	}
	function inferRole(el) {
		var tag = el.tagName.toLowerCase();
		if (tag === 'a') return 'link';
		if (tag === 'input') {
			var t = (el.getAttribute('type') || 'text').toLowerCase();
			if (t === 'checkbox') return 'checkbox';
			if (t === 'radio') return 'radio';
			return 'textbox';
		}
		if (tag === 'textarea') return 'textbox';
		if (tag === 'select') return 'combobox';
		var role = el.getAttribute('role');
		if (role) return role;
		return 'button';
	}
	function nameOf(el) {
		var v = el.getAttribute('aria-label') || el.getAttribute('placeholder') || el.getAttribute('title');
		if (v) return v;
		var text = (el.innerText || '').trim();
		return text.slice(0, 50);
	}
	var els = Array.prototype.slice.call(document.querySelectorAll(` + "`" + domFallbackSelector + "`" + `));
	var out = els.map(function(el) {
		return {
			role: inferRole(el),
			name: nameOf(el),
			domPath: computeDomPath(el),
			value: (el.value !== undefined ? String(el.value) : "")
		};
	});
	return JSON.stringify(out);
})()`

