// Package domain defines the error taxonomy shared by the emberkv core and
// server packages.
//
// Every failure that can reach a client or an operator is expressed as a
// DomainError carrying a stable code of the form EKV-<AREA>-<NNNN>. Codes
// compare with errors.Is regardless of message or details.
package domain
