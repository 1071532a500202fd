// Package api defines the shared vocabulary of the plauder gateway:
// chats, messages, bot and tool-server configuration, stream events,
// and the error taxonomy. It is imported by every other package and
// must stay free of transport and storage concerns.
package api
