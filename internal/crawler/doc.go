// Package crawler runs the politeness-aware crawl: a fixed pool of workers
// drains the frontier, fetches HTML pages, persists them and feeds discovered
// links back into the frontier.
package crawler
