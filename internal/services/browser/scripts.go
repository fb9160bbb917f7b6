package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/harvester/internal/models"
)

// resolveFn resolves a models.Locator against the live document
const resolveFn = `function __resolve(loc) {
	if (!loc) { return document; }
	var root = loc.within ? __resolve(loc.within) : document;
	if (!root) { return null; }
	var list = root.querySelectorAll(loc.selector);
	return list[loc.index] || null;
}`

// textMatchFn mirrors TextMatches. Needles arrive already lowercased.
const textMatchFn = `function __textMatches(el, texts) {
	var t = (el.innerText || el.textContent || "").trim().toLowerCase();
	if (!t) { return false; }
	for (var i = 0; i < texts.length; i++) {
		if (texts[i] && t.indexOf(texts[i]) >= 0) { return true; }
	}
	return false;
}`

// TextMatches reports whether text contains one of needles, ignoring case.
// Empty text and empty needles never match.
func TextMatches(text string, needles []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, n := range normalizeNeedles(needles) {
		if n != "" && strings.Contains(t, n) {
			return true
		}
	}
	return false
}

func normalizeNeedles(needles []string) []string {
	out := make([]string, 0, len(needles))
	for _, n := range needles {
		out = append(out, strings.ToLower(strings.TrimSpace(n)))
	}
	return out
}

func jsValue(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func countScript(selector string) string {
	return fmt.Sprintf(`(function() {
	try { return document.querySelectorAll(%s).length; } catch (e) { return 0; }
})()`, jsValue(selector))
}

func countWithinScript(scope models.Locator, selector string) string {
	return fmt.Sprintf(`(function() {
	%s
	var root = __resolve(%s);
	if (!root) { return 0; }
	try { return root.querySelectorAll(%s).length; } catch (e) { return 0; }
})()`, resolveFn, jsValue(scope), jsValue(selector))
}

func countTextScript(selector string, texts []string) string {
	return fmt.Sprintf(`(function() {
	%s
	var texts = %s;
	var n = 0;
	document.querySelectorAll(%s).forEach(function(el) { if (__textMatches(el, texts)) { n++; } });
	return n;
})()`, textMatchFn, jsValue(normalizeNeedles(texts)), jsValue(selector))
}

func clickTextScript(selector string, texts []string) string {
	return fmt.Sprintf(`(function() {
	%s
	var texts = %s;
	var els = document.querySelectorAll(%s);
	for (var i = 0; i < els.length; i++) {
		if (__textMatches(els[i], texts)) { els[i].click(); return true; }
	}
	return false;
})()`, textMatchFn, jsValue(normalizeNeedles(texts)), jsValue(selector))
}

func clickScript(target models.Locator) string {
	return fmt.Sprintf(`(function() {
	%s
	var el = __resolve(%s);
	if (!el) { return false; }
	el.scrollIntoView({block: "center"});
	el.click();
	return true;
})()`, resolveFn, jsValue(target))
}

const scrollToBottomScript = `(function() {
	window.scrollTo(0, document.body ? document.body.scrollHeight : 0);
	return true;
})()`

func scrollByScript(pixels int) string {
	return fmt.Sprintf(`(function() { window.scrollBy(0, %d); return true; })()`, pixels)
}

func scrollSectionScript(section models.Locator, strategy models.ScrollStrategy) string {
	return fmt.Sprintf(`(function() {
	%s
	var el = __resolve(%s);
	if (!el) { return false; }
	switch (%s) {
	case "into_view":
		el.scrollIntoView({block: "end"});
		break;
	case "section_end":
		var last = el.lastElementChild || el;
		last.scrollIntoView({block: "end"});
		break;
	case "window_step":
		el.scrollIntoView({block: "start"});
		window.scrollBy(0, 200);
		break;
	case "inner_scroll":
		el.querySelectorAll("*").forEach(function(child) {
			if (child.scrollHeight > child.clientHeight) { child.scrollTop = child.scrollHeight; }
			if (child.scrollWidth > child.clientWidth) { child.scrollLeft = child.scrollWidth; }
		});
		break;
	}
	return true;
})()`, resolveFn, jsValue(section), jsValue(string(strategy)))
}
