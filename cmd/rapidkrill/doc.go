// Command rapidkrill runs the shipboard krill abundance pipeline: it watches
// an echosounder share for finished RAW files, derives a krill index per
// file, and emails windowed reports to shore.
package main
