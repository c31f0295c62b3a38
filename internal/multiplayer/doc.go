// Package multiplayer is the realtime social transport of the client.
//
// A Client keeps one logical channel to the remote hub. While the hub is
// reachable, chat messages, login and state directives travel over a
// websocket. When the hub drops or cannot be reached, the client switches chat
// to a same-device broadcast channel (a topic on a device-wide pubsub.Bus) and
// keeps retrying the hub on a fixed interval. Consumers subscribe to three
// streams (messages, connection status, initial state) and never need to know
// which transport is active.
//
// Delivery is best-effort and at most once: SendMessage, UpdateState and Login
// never block and never report whether a frame reached anyone.
package multiplayer
