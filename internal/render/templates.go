package render

import "html/template"

type frameData struct {
	Scripts []string
	Source  string
	Title   string
}

type hostData struct {
	Meta           Meta
	Framed         bool
	FrameURL       string
	Fallback       template.HTML
	ReadyTimeoutMs int64
}

// The bootstrap is the only trusted script in the frame. It hands the
// component a fixed set of capabilities and reports back with postMessage.
var frameTemplate = template.Must(template.New("frame").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="referrer" content="no-referrer">
<title>{{.Title}}</title>
{{range .Scripts}}<script src="{{.}}" crossorigin="anonymous"></script>
{{end}}</head>
<body>
<div id="root"></div>
<script>
(function () {
  "use strict";
  var source = {{.Source}};
  var notify = function (type, message) {
    parent.postMessage({ type: type, message: message || "" }, "*");
  };
  var describe = function (err) {
    return String((err && err.message) || err || "error");
  };
  window.addEventListener("error", function (event) {
    notify("invite:error", describe(event.error || event.message));
  });
  window.addEventListener("unhandledrejection", function (event) {
    notify("invite:error", describe(event.reason));
  });

  try {
    var h = React.createElement;

    var useNow = function (intervalMs) {
      var state = React.useState(function () { return new Date(); });
      React.useEffect(function () {
        var id = setInterval(function () { state[1](new Date()); }, intervalMs || 1000);
        return function () { clearInterval(id); };
      }, [intervalMs]);
      return state[0];
    };

    var compiled = Babel.transform(source, { presets: ["react"] }).code;
    var factory = new Function(
      "React", "useState", "useEffect", "useMemo", "useRef", "useCallback", "useNow",
      compiled + "\nreturn typeof InviteComponent !== 'undefined' ? InviteComponent : typeof App !== 'undefined' ? App : typeof Component !== 'undefined' ? Component : null;"
    );
    var Invite = factory(React, React.useState, React.useEffect, React.useMemo, React.useRef, React.useCallback, useNow);
    if (typeof Invite !== "function") {
      throw new Error("no component found");
    }

    var Boundary = function (props) {
      React.Component.call(this, props);
      this.state = { failed: false };
    };
    Boundary.prototype = Object.create(React.Component.prototype);
    Boundary.prototype.constructor = Boundary;
    Boundary.getDerivedStateFromError = function () {
      return { failed: true };
    };
    Boundary.prototype.componentDidCatch = function (err) {
      notify("invite:error", describe(err));
    };
    Boundary.prototype.componentDidMount = function () {
      if (!this.state.failed) {
        notify("invite:ready");
      }
    };
    Boundary.prototype.render = function () {
      return this.state.failed ? null : this.props.children;
    };

    ReactDOM.createRoot(document.getElementById("root")).render(h(Boundary, null, h(Invite)));
  } catch (err) {
    notify("invite:error", describe(err));
  }
})();
</script>
</body>
</html>
`))

var fallbackTemplate = template.Must(template.New("fallback").Parse(`<main class="invite-fallback">
{{if .HeroURL}}<img class="hero" src="{{.HeroURL}}" alt="">
{{end}}<h1>{{.Title}}</h1>
<p class="when">{{.Date}}{{if .Time}} at {{.Time}}{{end}}</p>
<p class="where">{{.Venue}}</p>
{{if .Description}}<p class="description">{{.Description}}</p>
{{end}}{{if .DressCode}}<p class="dress-code">Dress code: {{.DressCode}}</p>
{{end}}{{if or .WhatsAppURL .CallURL}}<div class="rsvp">
{{if .WhatsAppURL}}<a class="rsvp-whatsapp" href="{{.WhatsAppURL}}" rel="noopener">RSVP on WhatsApp</a>
{{end}}{{if .CallURL}}<a class="rsvp-call" href="{{.CallURL}}">Call to RSVP</a>
{{end}}</div>
{{end}}</main>`))

var hostTemplate = template.Must(template.New("host").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Meta.Title}}</title>
<meta name="description" content="{{.Meta.Description}}">
<meta property="og:title" content="{{.Meta.Title}}">
<meta property="og:description" content="{{.Meta.Description}}">
{{if .Meta.Image}}<meta property="og:image" content="{{.Meta.Image}}">
{{end}}<style>
html, body { margin: 0; padding: 0; height: 100%; font-family: system-ui, sans-serif; background: #faf7f2; color: #222; }
#invite-frame { display: block; width: 100%; height: 100vh; border: 0; }
.invite-fallback { max-width: 36rem; margin: 0 auto; padding: 2rem 1.25rem; text-align: center; }
.invite-fallback .hero { width: 100%; border-radius: 1rem; object-fit: cover; max-height: 18rem; }
.invite-fallback h1 { font-size: 2rem; margin: 1.5rem 0 0.5rem; }
.invite-fallback .when, .invite-fallback .where { font-size: 1.125rem; margin: 0.25rem 0; }
.invite-fallback .description { margin: 1.5rem 0; line-height: 1.6; }
.invite-fallback .rsvp a { display: inline-block; margin: 0.5rem; padding: 0.75rem 1.5rem; border-radius: 9999px; background: #222; color: #fff; text-decoration: none; }
</style>
</head>
<body>
{{if .Framed}}<iframe id="invite-frame" src="{{.FrameURL}}" sandbox="allow-scripts" referrerpolicy="no-referrer" title="{{.Meta.Title}}"></iframe>
<div id="invite-fallback" hidden>{{.Fallback}}</div>
<script>
(function () {
  var frame = document.getElementById("invite-frame");
  var fallback = document.getElementById("invite-fallback");
  var state = "pending";
  var showFallback = function () {
    if (state === "fallback") {
      return;
    }
    state = "fallback";
    frame.remove();
    fallback.hidden = false;
  };
  var timer = setTimeout(showFallback, {{.ReadyTimeoutMs}});
  window.addEventListener("message", function (event) {
    if (event.source !== frame.contentWindow || !event.data) {
      return;
    }
    if (event.data.type === "invite:ready" && state === "pending") {
      state = "rendered";
      clearTimeout(timer);
    } else if (event.data.type === "invite:error") {
      clearTimeout(timer);
      showFallback();
    }
  });
})();
</script>
{{else}}{{.Fallback}}
{{end}}</body>
</html>
`))
