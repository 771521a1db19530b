// Package transitrelay pairs two TCP clients that present the same relay
// token and splices their streams together.
//
// A client opens with "please relay <token> for side <side>\n". Once a
// second client with the same token and a different side arrives, both get
// "ok\n" and every later byte is copied across untouched. The relay never
// sees plaintext: transit records are encrypted end to end.
package transitrelay
