package database

var SqliteDSN = sqliteDSN
