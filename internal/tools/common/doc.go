// Package common holds helpers shared by the tool packages: the
// instrumentation wrapper every handler is registered through and the
// conversion of errors into tool results.
package common
