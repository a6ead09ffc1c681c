// Package application contém os casos de uso (regras de aplicação) da admissão
// de requisições e do limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Admit(req) retorna um Verdict (allowed/throttled/denied + retry-after).
package application
