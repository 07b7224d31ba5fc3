// Package printing contains the print spool bounded context: jobs carrying
// printer-native payloads that remote printer agents pull in FIFO order.
package printing
