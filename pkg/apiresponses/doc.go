// Package apiresponses provides the JSON response helpers of the HTTP API.
package apiresponses
