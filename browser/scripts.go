package browser

// Page-side readers shared by the emulated and Chrome hosts. Each returns a
// JSON string so both hosts decode into the same Go structs.

// navigatorReader takes a navigator object. Getter failures propagate so
// callers can treat an unreadable navigator as an error.
const navigatorReader = `function (n) {
  var num = function (v) { return typeof v === "number" && isFinite(v) ? v : null; };
  return JSON.stringify({
    userAgent: String(n.userAgent || ""),
    platform: String(n.platform || ""),
    language: String(n.language || ""),
    languages: n.languages ? Array.prototype.slice.call(n.languages).map(String) : [],
    webdriver: !!n.webdriver,
    hardwareConcurrency: Math.floor(num(n.hardwareConcurrency) || 0),
    deviceMemory: num(n.deviceMemory),
    cookieEnabled: !!n.cookieEnabled,
    doNotTrack: n.doNotTrack == null ? null : String(n.doNotTrack),
    plugins: n.plugins ? (n.plugins.length | 0) : 0,
    mimeTypes: n.mimeTypes ? (n.mimeTypes.length | 0) : 0
  });
}`

const navigatorScript = `(` + navigatorReader + `)(navigator)`

const screenScript = `JSON.stringify({
  width: screen.width | 0,
  height: screen.height | 0,
  colorDepth: screen.colorDepth | 0,
  pixelRatio: Number(window.devicePixelRatio) || 1
})`

const viewportScript = `JSON.stringify({
  width: Number(window.innerWidth) || 0,
  height: Number(window.innerHeight) || 0
})`

const nativeSourceScript = `Function.prototype.toString.toString()`
