// internal/browser/session/script.go
package session

import (
	"fmt"
)

// stateInit installs the per-document marker registry. Markers live in a
// WeakMap so tagging never mutates the DOM; a navigation discards them.
const stateInit = `
const st = window.__mimic || (window.__mimic = {
  prefix: %s, seq: 0, ids: new WeakMap(), els: new Map(),
  mark(el) {
    let m = this.ids.get(el);
    if (!m) {
      m = this.prefix + '-' + (++this.seq);
      this.ids.set(el, m);
      this.els.set(m, new WeakRef(el));
    }
    return m;
  },
  find(m) {
    const ref = this.els.get(m);
    const el = ref && ref.deref();
    return el && el.isConnected ? el : null;
  },
});
`

// snapshotScript returns every element of the document in document order
// with the facts the matcher needs, plus the matches of each CSS selector.
const snapshotScript = `(function(prefix, testIdAttr, cssList, cap) {
%s
const SKIP = new Set(['SCRIPT','STYLE','TEMPLATE','NOSCRIPT','HEAD','TITLE','META','LINK']);
const INLINE = new Set(['A','ABBR','B','BDI','BDO','CITE','CODE','DATA','DFN','EM','I','KBD',
  'MARK','Q','S','SAMP','SMALL','SPAN','STRONG','SUB','SUP','TIME','U','VAR']);
const KEEP = ['id','role','type','href','list','multiple','size','alt','placeholder','title',
  'name','value','hidden','aria-hidden','aria-label'];
const labelable = el => {
  switch (el.tagName) {
    case 'INPUT': return (el.getAttribute('type') || '').toLowerCase() !== 'hidden';
    case 'SELECT': case 'TEXTAREA': case 'BUTTON': case 'METER': case 'OUTPUT': case 'PROGRESS': return true;
  }
  return false;
};
const hiddenSelf = el => {
  if (SKIP.has(el.tagName) || el.hasAttribute('hidden')) return true;
  if ((el.getAttribute('aria-hidden') || '').trim().toLowerCase() === 'true') return true;
  if (el.tagName === 'INPUT' && (el.getAttribute('type') || '').trim().toLowerCase() === 'hidden') return true;
  const cs = window.getComputedStyle(el);
  return cs.display === 'none' || cs.visibility === 'hidden';
};
const norm = s => s.replace(/\s+/g, ' ').trim();
const textOf = (root, skip) => {
  let out = '';
  const walk = n => {
    if (n.nodeType === 3) { out += n.data; return; }
    if (n.nodeType !== 1) return;
    if (n !== root && (hiddenSelf(n) || (skip && skip(n)))) return;
    const block = !INLINE.has(n.tagName);
    if (block) out += ' ';
    for (const c of n.childNodes) walk(c);
    if (block) out += ' ';
  };
  walk(root);
  return norm(out);
};

const all = [document.documentElement, ...document.documentElement.querySelectorAll('*')];
const index = new Map();
all.forEach((el, i) => index.set(el, i));
const hidden = all.map(hiddenSelf);

// Text is built bottom-up; children follow their parent in document order.
const raw = new Array(all.length).fill('');
for (let i = all.length - 1; i >= 0; i--) {
  let out = '';
  for (const c of all[i].childNodes) {
    if (c.nodeType === 3) { out += c.data; continue; }
    if (c.nodeType !== 1) continue;
    const j = index.get(c);
    if (j === undefined || hidden[j]) continue;
    out += INLINE.has(c.tagName) ? raw[j] : ' ' + raw[j] + ' ';
  }
  raw[i] = out.length > cap * 4 ? out.slice(0, cap * 4) : out;
}

const labelFor = el => {
  if (!labelable(el)) return '';
  if (el.id) {
    for (const l of document.getElementsByTagName('label')) {
      if (l.getAttribute('for') === el.id) {
        const t = textOf(l, labelable);
        if (t) return t;
        break;
      }
    }
  }
  const wrap = el.closest('label');
  return wrap ? textOf(wrap, labelable) : '';
};
const ariaLabel = el => {
  const refs = (el.getAttribute('aria-labelledby') || '').split(/\s+/).filter(Boolean);
  const parts = refs.map(id => document.getElementById(id)).filter(Boolean).map(r => textOf(r)).filter(Boolean);
  if (parts.length) return parts.join(' ');
  return norm(el.getAttribute('aria-label') || '');
};
const nthOfType = el => {
  let n = 1;
  for (let s = el.previousElementSibling; s; s = s.previousElementSibling) if (s.tagName === el.tagName) n++;
  return n;
};

const elements = all.map((el, i) => {
  const a = {};
  for (const attr of el.attributes) {
    const name = attr.name.toLowerCase();
    if (KEEP.includes(name) || name.startsWith('data-') || name === testIdAttr) a[name] = attr.value;
  }
  const parent = el.parentElement ? index.get(el.parentElement) : undefined;
  const text = norm(raw[i]);
  return {
    m: st.mark(el), p: parent === undefined ? -1 : parent, t: el.tagName.toLowerCase(), a,
    h: hidden[i], x: text.length > cap ? text.slice(0, cap) : text,
    l: labelFor(el), al: ariaLabel(el), n: nthOfType(el),
  };
});

const css = cssList.map(sel => {
  try {
    return { matches: Array.from(document.querySelectorAll(sel), el => index.get(el)) };
  } catch (e) {
    return { error: String(e && e.message || e) };
  }
});
return { elements, css };
})(%s, %s, %s, %d)`

// pointScript scrolls the element into view and returns its center, or null
// when the marker no longer names a connected element.
const pointScript = `(function(prefix, marker) {
%s
const el = st.find(marker);
if (!el) return null;
el.scrollIntoView({ block: 'center', inline: 'center' });
const r = el.getBoundingClientRect();
return { x: r.left + r.width / 2, y: r.top + r.height / 2, w: r.width, h: r.height };
})(%s, %s)`

// formScript applies a value-level form operation. It reports ok=false with
// a reason when the element or option is missing.
const formScript = `(function(prefix, marker, op, value) {
%s
const el = st.find(marker);
if (!el) return { ok: false, missing: true, reason: 'element is gone' };
const fire = () => {
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
};
const setValue = v => {
  const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
  if (desc && desc.set) desc.set.call(el, v); else el.value = v;
};
el.focus();
switch (op) {
  case 'fill': setValue(value); fire(); break;
  case 'clear': setValue(''); fire(); break;
  case 'focus': break;
  case 'select': {
    const opts = Array.from(el.options || []);
    const opt = opts.find(o => o.value === value) || opts.find(o => o.text.trim() === value);
    if (!opt) return { ok: false, missing: true, reason: 'no option ' + JSON.stringify(value) };
    opt.selected = true; fire(); break;
  }
  case 'check': case 'uncheck': {
    const want = op === 'check';
    if (el.checked !== want) el.click();
    break;
  }
  default: return { ok: false, reason: 'unsupported operation ' + op };
}
return { ok: true };
})(%s, %s, %s, %s)`

// jsonEncode encodes a value for safe injection into a script.
func jsonEncode(v interface{}) string {
	b, err := codec.Marshal(v)
	if err != nil {
		return `null`
	}
	return string(b)
}

func withState(script string, prefix string, args ...interface{}) string {
	encoded := make([]interface{}, 0, len(args)+2)
	encoded = append(encoded, fmt.Sprintf(stateInit, "prefix"))
	encoded = append(encoded, jsonEncode(prefix))
	for _, a := range args {
		switch v := a.(type) {
		case int:
			encoded = append(encoded, v)
		default:
			encoded = append(encoded, jsonEncode(v))
		}
	}
	return fmt.Sprintf(script, encoded...)
}

func buildSnapshotScript(prefix, testIDAttr string, css []string, textCap int) string {
	if css == nil {
		css = []string{}
	}
	return withState(snapshotScript, prefix, testIDAttr, css, textCap)
}

func buildPointScript(prefix, marker string) string {
	return withState(pointScript, prefix, marker)
}

func buildFormScript(prefix, marker, op, value string) string {
	return withState(formScript, prefix, marker, op, value)
}
