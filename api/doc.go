/*
Package api holds the wire types shared by the content service HTTP server and
its client in the clients subpackage.
*/
package api
