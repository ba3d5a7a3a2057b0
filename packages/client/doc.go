// Package client is a Go client for a running hookrelay server.
//
// Keys may be given with or without their leading slash: "orders" and
// "/orders" both address /push/orders and /poll/orders.
package client
