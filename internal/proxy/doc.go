// Package proxy adapts the Fiber interception boundary to the strategy layer.
package proxy
