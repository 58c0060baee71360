// Package tftpproto provides types and routines for parsing and
// producing TFTP messages, as defined by RFC 1350. It is used by
// package tftp to implement a TFTP server, and can be used to
// implement clients as well.
package tftpproto
