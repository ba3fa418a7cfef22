package web

// liveScript upgrades the dashboard to the websocket protocol served at the grid's data-live URL.
const liveScript = `
(function () {
  var grid = document.getElementById("grid");
  var live = grid && grid.getAttribute("data-live");
  if (!live || !window.WebSocket) { return; }
  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var socket = new WebSocket(scheme + location.host + live);
  var notice = document.getElementById("notice");
  var query = document.getElementById("search-query");
  var field = document.getElementById("search-field");

  function send(message) {
    if (socket.readyState === 1) { socket.send(JSON.stringify(message)); }
  }

  socket.onmessage = function (event) {
    var message = JSON.parse(event.data);
    if (message.type === "view") {
      grid.innerHTML = message.html;
    } else if (message.type === "notice") {
      var banner = document.createElement("div");
      banner.className = "notice notice-" + message.kind;
      banner.textContent = message.message;
      notice.innerHTML = "";
      notice.appendChild(banner);
    } else if (message.type === "signed_out") {
      location.href = "/login";
    }
  };

  document.getElementById("search").addEventListener("submit", function (event) {
    event.preventDefault();
  });
  query.addEventListener("input", function () {
    send({type: "search", query: query.value});
  });
  field.addEventListener("change", function () {
    send({type: "field", field: field.value});
  });

  grid.addEventListener("click", function (event) {
    var target = event.target.closest("[data-page],[data-action]");
    if (!target || !grid.contains(target) || target.tagName === "FORM") { return; }
    if (target.hasAttribute("data-page")) {
      event.preventDefault();
      send({type: "page", page: parseInt(target.getAttribute("data-page"), 10)});
      return;
    }
    var action = target.getAttribute("data-action");
    if (action === "open_image") {
      event.preventDefault();
      send({type: "open_image", url: target.getAttribute("data-url")});
    } else if (action === "close_image") {
      event.preventDefault();
      send({type: "close_image"});
    } else if (action === "edit") {
      event.preventDefault();
      var card = target.closest(".card");
      var name = prompt("Name", card.querySelector("h2").textContent);
      if (name === null) { return; }
      var handle = prompt("Social media handle", card.querySelector(".handle").textContent.replace(/^@/, ""));
      if (handle === null) { return; }
      send({type: "edit", id: target.getAttribute("data-id"), name: name, handle: handle});
    }
  });

  grid.addEventListener("submit", function (event) {
    var form = event.target;
    if (form.getAttribute("data-action") !== "delete") { return; }
    event.preventDefault();
    if (!confirm("Delete this submission?")) { return; }
    var button = form.querySelector("button");
    if (button) { button.disabled = true; }
    send({type: "delete", id: form.getAttribute("data-id")});
  });
})();
`
