// Package mock defines the data model shared by the interception engine,
// the local and remote interceptors and the wire protocol: captured
// requests, restrictions, delays, responses and times expectations.
package mock
