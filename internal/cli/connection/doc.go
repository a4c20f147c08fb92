// Package connection implements the client side of the emberkv line
// protocol.
//
// Commands are sent as one space separated header line. Commands that
// carry a payload (SET, SETNX, ECHO) append the payload length to the
// header and send the payload on the following line. Replies are decoded
// with redcon.
package connection
