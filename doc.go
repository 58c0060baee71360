/*
Package tftp serves files over the Trivial File Transfer Protocol
(RFC 1350).

The tftp package provides a UDP listener that accepts read and write
requests, and runs each accepted transfer on its own goroutine and
ephemeral UDP port, in lock step with the client. Transfers are
plain files beneath a single served directory; a request that would
resolve outside of it is refused.

The ListenAndServe function and Server type run a server bound to a
UDP port:

	srv := tftp.Server{
		Addr:     ":6969",
		Root:     "/srv/tftp",
		ErrorLog: log.New(os.Stderr, "", log.LstdFlags),
	}
	log.Fatal(srv.ListenAndServe())

The netascii and octet modes are both accepted and treated as octet;
no line-ending translation is performed. The option extensions of
RFC 2347 and its successors are not implemented.

The wire format lives in the tftpproto subpackage, and the per-
transfer state machines are exported as ReadSession and WriteSession;
both can be reused to build clients or servers with different I/O
models.
*/
package tftp
