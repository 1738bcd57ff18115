// Package tools defines the contract every callable tool implements and
// the shared argument decoding used at the tool boundary.
package tools
