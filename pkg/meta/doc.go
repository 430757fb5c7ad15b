/*
Package meta carries caller provenance on requests.

A Meta records who asked (user or system), when, and why. It is stamped
once — Stamp fills an empty source and a zero timestamp — and then flows
unchanged through guards, the handler and the task record. Metas never
outlive their request; the next request starts fresh.

FromEvent derives a meta from an event-like value: trusted events map to
the user source, the event type becomes the reason.
*/
package meta
